// Package recipient decides which users should hear about an incident.
//
// Two strategies are combined per user: a haversine radius around the incident
// for users with stored coordinates, and a case-insensitive district match for
// users without them. Government users are resolved separately so they receive
// every new report regardless of where they live.
package recipient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/geo"
)

// UserDirectory is the read side of the identity store.
type UserDirectory interface {
	ListLocated(ctx context.Context) ([]db.UserLocation, error)
	ListIDsByRole(ctx context.Context, role string) ([]string, error)
}

// Cache stores resolved id sets. Implementations may be nil-safe no-ops.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, ids []string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

func roleCacheKey(role string) string {
	return "recipients:role:" + role
}

// Origin is the incident location in degrees.
type Origin struct {
	Lat float64
	Lng float64
}

// Resolver computes recipient sets. All methods are best-effort: a failed read
// yields an empty set and a log line, never an error.
type Resolver struct {
	users    UserDirectory
	radiusKm func(category string) float64
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache caches the government recipient set for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// WithRadiusPolicy replaces the category radius table.
func WithRadiusPolicy(policy func(category string) float64) Option {
	return func(r *Resolver) {
		r.radiusKm = policy
	}
}

// New creates a Resolver reading from users.
func New(users UserDirectory, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		users:    users,
		radiusKm: geo.RadiusForCategory,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveRadius returns the users near origin for the given category.
//
// Users with coordinates are included when their distance is at most the
// category radius; the district is not consulted for them. Users without
// coordinates are included when their district equals fallbackZone ignoring
// case. excludeUserID is never returned.
func (r *Resolver) ResolveRadius(ctx context.Context, origin Origin, category, fallbackZone, excludeUserID string) []string {
	radiusKm := r.radiusKm(category)

	users, err := r.users.ListLocated(ctx)
	if err != nil {
		r.logger.Error("recipient lookup failed",
			zap.Error(err),
			zap.String("category", category),
		)
		return []string{}
	}

	zone := strings.TrimSpace(fallbackZone)
	seen := make(map[string]struct{}, len(users))
	result := make([]string, 0)

	for _, u := range users {
		if u.UserID == "" || u.UserID == excludeUserID {
			continue
		}
		if _, dup := seen[u.UserID]; dup {
			continue
		}

		if u.HasCoordinates() {
			if geo.DistanceKm(origin.Lat, origin.Lng, *u.Lat, *u.Lng) <= radiusKm {
				seen[u.UserID] = struct{}{}
				result = append(result, u.UserID)
			}
			continue
		}

		if districtMatches(u.District, zone) {
			seen[u.UserID] = struct{}{}
			result = append(result, u.UserID)
		}
	}

	r.logger.Debug("radius recipients resolved",
		zap.String("category", category),
		zap.Float64("radius_km", radiusKm),
		zap.Int("candidates", len(users)),
		zap.Int("recipient_count", len(result)),
	)

	return result
}

// ResolveZone returns every user whose district equals zone ignoring case,
// whether or not they have coordinates. Used for events without a location.
func (r *Resolver) ResolveZone(ctx context.Context, zone, excludeUserID string) []string {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return []string{}
	}

	users, err := r.users.ListLocated(ctx)
	if err != nil {
		r.logger.Error("zone recipient lookup failed", zap.Error(err), zap.String("zone", zone))
		return []string{}
	}

	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, u := range users {
		if u.UserID == "" || u.UserID == excludeUserID {
			continue
		}
		if _, dup := seen[u.UserID]; dup {
			continue
		}
		if districtMatches(u.District, zone) {
			seen[u.UserID] = struct{}{}
			result = append(result, u.UserID)
		}
	}
	return result
}

// ResolveGovernment returns every government-role user id.
func (r *Resolver) ResolveGovernment(ctx context.Context) []string {
	if r.cache != nil {
		ids, ok, err := r.cache.Get(ctx, roleCacheKey(db.RoleGovernment))
		if err != nil {
			r.logger.Warn("government recipient cache read failed", zap.Error(err))
		} else if ok {
			return ids
		}
	}

	ids, err := r.users.ListIDsByRole(ctx, db.RoleGovernment)
	if err != nil {
		r.logger.Error("government recipient lookup failed", zap.Error(err))
		return []string{}
	}
	if ids == nil {
		ids = []string{}
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, roleCacheKey(db.RoleGovernment), ids, r.cacheTTL); err != nil {
			r.logger.Warn("government recipient cache write failed", zap.Error(err))
		}
	}

	return ids
}

// ForgetRole drops the cached id set for role so the next lookup reads the
// directory again. Without a cache it does nothing.
func (r *Resolver) ForgetRole(ctx context.Context, role string) error {
	if r.cache == nil || role == "" {
		return nil
	}
	if err := r.cache.Invalidate(ctx, roleCacheKey(role)); err != nil {
		return fmt.Errorf("invalidate %s recipients: %w", role, err)
	}
	return nil
}

func districtMatches(district *string, zone string) bool {
	if district == nil || zone == "" {
		return false
	}
	d := strings.TrimSpace(*district)
	return d != "" && strings.EqualFold(d, zone)
}
