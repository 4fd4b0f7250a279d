package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/circuitbreaker"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/device"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/fanout"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/notify"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/redis"
)

const testInternalKey = "internal-key"

// --- fakes ---

type fakeDevices struct {
	mu          sync.Mutex
	upserts     []string
	deactivated []string
	err         error
}

func (f *fakeDevices) Upsert(_ context.Context, userID, token, platform string) (*db.DeviceToken, error) {
	if token == "" {
		return nil, device.ErrEmptyToken
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, userID+"|"+token)
	return &db.DeviceToken{
		ID:       uuid.New(),
		UserID:   userID,
		Token:    token,
		Platform: device.NormalizePlatform(platform),
		Active:   true,
	}, nil
}

func (f *fakeDevices) Deactivate(_ context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, token)
	return nil
}

type fakeFeed struct {
	lastUser  string
	lastLimit int
	items     []*db.Notification
	unread    int
	markErr   error
	markedID  uuid.UUID
	listErr   error
}

func (f *fakeFeed) List(_ context.Context, userID string, limit int) (*notify.Feed, error) {
	f.lastUser, f.lastLimit = userID, limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := f.items
	if items == nil {
		items = []*db.Notification{}
	}
	return &notify.Feed{Notifications: items, UnreadCount: f.unread}, nil
}

func (f *fakeFeed) UnreadCount(_ context.Context, userID string) (int, error) {
	f.lastUser = userID
	return f.unread, nil
}

func (f *fakeFeed) MarkRead(_ context.Context, userID string, id uuid.UUID) error {
	f.lastUser, f.markedID = userID, id
	return f.markErr
}

func (f *fakeFeed) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.lastUser = userID
	return int64(f.unread), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []any
	result fanout.Result
}

func (s *recordingSink) record(ev any) fanout.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.result
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) ReportCreated(_ context.Context, ev fanout.ReportCreated) fanout.Result {
	return s.record(ev)
}
func (s *recordingSink) ActionCreated(_ context.Context, ev fanout.ActionCreated) fanout.Result {
	return s.record(ev)
}
func (s *recordingSink) ReportVoted(_ context.Context, ev fanout.ReportVoted) fanout.Result {
	return s.record(ev)
}
func (s *recordingSink) ReportVerified(_ context.Context, ev fanout.ReportVerified) fanout.Result {
	return s.record(ev)
}
func (s *recordingSink) ReportStatusChanged(_ context.Context, ev fanout.ReportStatusChanged) fanout.Result {
	return s.record(ev)
}
func (s *recordingSink) CommentAdded(_ context.Context, ev fanout.CommentAdded) fanout.Result {
	return s.record(ev)
}

type fakeRoles struct {
	forgotten []string
	err       error
}

func (f *fakeRoles) ForgetRole(_ context.Context, role string) error {
	f.forgotten = append(f.forgotten, role)
	return f.err
}

type testServer struct {
	router  http.Handler
	devices *fakeDevices
	feed    *fakeFeed
	sink    *recordingSink
	roles   *fakeRoles
}

func newTestServer(t *testing.T, idem Idempotency) *testServer {
	t.Helper()
	ts := &testServer{
		devices: &fakeDevices{},
		feed:    &fakeFeed{},
		sink:    &recordingSink{result: fanout.Scheduled},
		roles:   &fakeRoles{},
	}
	h := NewHandler(zap.NewNop(), Deps{
		Devices:     ts.devices,
		Feed:        ts.feed,
		Events:      ts.sink,
		Roles:       ts.roles,
		Idempotency: idem,
	})
	ts.router = NewRouter(RouterConfig{
		Logger:      zap.NewNop(),
		Handler:     h,
		JWTSecret:   testSecret,
		InternalKey: testInternalKey,
		CORSOrigins: []string{"http://localhost:8081"},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func userHeader(t *testing.T, userID string) http.Header {
	return http.Header{
		"Authorization": {"Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), userID, time.Hour)},
	}
}

func internalHeader(idempotencyKey string) http.Header {
	h := http.Header{"X-Internal-Key": {testInternalKey}}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

// --- device tokens ---

func TestRegisterDevice(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/device-tokens",
		RegisterDeviceRequest{Token: "ExponentPushToken[abc]", Platform: "IOS"},
		userHeader(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ExponentPushToken[abc]", resp.Token)
	assert.Equal(t, db.PlatformIOS, resp.Platform)
	assert.True(t, resp.Active)
	assert.Equal(t, []string{"user-1|ExponentPushToken[abc]"}, ts.devices.upserts)
}

func TestRegisterDevice_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/device-tokens", map[string]string{"platform": "android"}, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Empty(t, ts.devices.upserts)
}

func TestRegisterDevice_MalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/device-tokens", "{not json", userHeader(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDevice_StoreFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.devices.err = errors.New("connection reset")

	rec := ts.do(t, http.MethodPost, "/api/device-tokens", RegisterDeviceRequest{Token: "tok"}, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRegisterDevice_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/device-tokens", RegisterDeviceRequest{Token: "tok"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.devices.upserts)
}

func TestUnregisterDevice(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodDelete, "/api/device-tokens", UnregisterDeviceRequest{Token: "tok"}, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deactivated":true}`, rec.Body.String())
	assert.Equal(t, []string{"tok"}, ts.devices.deactivated)
}

// --- feed ---

func TestListNotifications_LimitHandling(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=5", 5},
		{"?limit=1000", 100},
		{"?limit=0", 20},
		{"?limit=abc", 20},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodGet, "/api/notifications"+tt.query, nil, userHeader(t, "user-1"))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, ts.feed.lastLimit)
			assert.Equal(t, "user-1", ts.feed.lastUser)
		})
	}
}

func TestListNotifications_Body(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.feed.unread = 3

	rec := ts.do(t, http.MethodGet, "/api/notifications", nil, userHeader(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notifications":[],"unreadCount":3}`, rec.Body.String())
}

func TestListNotifications_StoreFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.feed.listErr = errors.New("timeout")

	rec := ts.do(t, http.MethodGet, "/api/notifications", nil, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnreadCount(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.feed.unread = 7

	rec := ts.do(t, http.MethodGet, "/api/notifications/unread-count", nil, userHeader(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":7}`, rec.Body.String())
}

func TestMarkRead(t *testing.T) {
	ts := newTestServer(t, nil)
	id := uuid.New()

	rec := ts.do(t, http.MethodPatch, "/api/notifications/"+id.String()+"/read", nil, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, ts.feed.markedID)
	assert.Equal(t, "user-1", ts.feed.lastUser)
}

func TestMarkRead_InvalidID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPatch, "/api/notifications/not-a-uuid/read", nil, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.feed.markErr = fmt.Errorf("notification: %w", db.ErrNotFound)

	rec := ts.do(t, http.MethodPatch, "/api/notifications/"+uuid.NewString()+"/read", nil, userHeader(t, "user-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllRead(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.feed.unread = 4

	rec := ts.do(t, http.MethodPatch, "/api/notifications/read-all", nil, userHeader(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":4}`, rec.Body.String())
}

// --- event ingestion ---

var statusChanged = fanout.ReportStatusChanged{
	ReportID: "r-1",
	OwnerID:  "owner",
	ActorID:  "officer",
	Title:    "Jalan berlubang",
	Status:   "in_progress",
}

func TestIngestEvent_Accepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader(""))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"event":"report-status-changed","scheduled":true}`, rec.Body.String())
	require.Equal(t, 1, ts.sink.count())
	assert.Equal(t, statusChanged, ts.sink.events[0])
}

func TestIngestEvent_EveryEventIsRouted(t *testing.T) {
	lat, lng := -6.9, 107.6
	bodies := map[string]any{
		fanout.EventReportCreated: fanout.ReportCreated{
			ReportID: "r-1", AuthorID: "a", Category: "Banjir", Title: "Banjir", Lat: &lat, Lng: &lng,
		},
		fanout.EventActionCreated:       fanout.ActionCreated{ActionID: "x-1", AuthorID: "a", Title: "Bersih", Lat: &lat, Lng: &lng},
		fanout.EventReportVoted:         fanout.ReportVoted{ReportID: "r-1", OwnerID: "o", ActorID: "a", Upvote: true},
		fanout.EventReportVerified:      fanout.ReportVerified{ReportID: "r-1", OwnerID: "o", ActorID: "a"},
		fanout.EventReportStatusChanged: statusChanged,
		fanout.EventCommentAdded:        fanout.CommentAdded{TargetType: "action", TargetID: "x-1", OwnerID: "o", ActorID: "a"},
	}

	ts := newTestServer(t, nil)
	for event, body := range bodies {
		rec := ts.do(t, http.MethodPost, "/internal/events/"+event, body, internalHeader(""))
		assert.Equal(t, http.StatusAccepted, rec.Code, event)
	}
	assert.Equal(t, len(bodies), ts.sink.count())
}

func TestIngestEvent_ValidationFailure(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventCommentAdded,
		fanout.CommentAdded{TargetType: "video", TargetID: "t", OwnerID: "o", ActorID: "a"},
		internalHeader(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "TargetType")
	assert.Zero(t, ts.sink.count())
}

func TestIngestEvent_OutOfRangeCoordinates(t *testing.T) {
	ts := newTestServer(t, nil)

	lat, lng := 120.0, 107.0
	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportCreated,
		fanout.ReportCreated{ReportID: "r", AuthorID: "a", Category: "Banjir", Title: "t", Lat: &lat, Lng: &lng},
		internalHeader(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ts.sink.count())
}

func TestIngestEvent_ReportWithoutCoordinates(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportCreated,
		`{"reportId":"r","authorId":"a","category":"Banjir","title":"t","district":"Coblong"}`,
		internalHeader(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Lat")
	assert.Zero(t, ts.sink.count())
}

func TestIngestEvent_ReportAtZeroCoordinatesIsAccepted(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportCreated,
		`{"reportId":"r","authorId":"a","category":"Banjir","title":"t","lat":0,"lng":0}`,
		internalHeader(""))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ts.sink.count())
}

func TestIngestEvent_UnknownEvent(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/report-deleted", map[string]string{}, internalHeader(""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestEvent_RequiresInternalKey(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged,
		userHeader(t, "user-1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ts.sink.count())
}

func TestIngestEvent_NotScheduled(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.sink.result = fanout.Skipped

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader(""))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"event":"report-status-changed","scheduled":false}`, rec.Body.String())
}

func TestIngestEvent_IdempotentReplay(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)

	first := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))
	second := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, ts.sink.count())
}

func TestIngestEvent_SkippedResultIsReplayed(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)
	ts.sink.result = fanout.Skipped

	ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))
	second := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, `{"event":"report-status-changed","scheduled":false}`, second.Body.String())
	assert.Equal(t, 1, ts.sink.count())
}

func TestIngestEvent_DroppedFanoutReleasesKey(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)
	ts.sink.result = fanout.Dropped

	first := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	assert.Equal(t, "1", first.Header().Get("Retry-After"))

	ts.sink.mu.Lock()
	ts.sink.result = fanout.Scheduled
	ts.sink.mu.Unlock()

	second := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	require.Equal(t, http.StatusAccepted, second.Code)
	assert.Empty(t, second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, `{"event":"report-status-changed","scheduled":true}`, second.Body.String())
	assert.Equal(t, 2, ts.sink.count())
}

func TestIngestEvent_DroppedWithoutIdempotency(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.sink.result = fanout.Dropped

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestIngestEvent_IdempotencyKeyScopedByEvent(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)

	verified := fanout.ReportVerified{ReportID: "r-1", OwnerID: "owner", ActorID: "neighbour"}

	ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))
	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportVerified, verified, internalHeader("evt-1"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 2, ts.sink.count())
}

func TestIngestEvent_InFlightDuplicate(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)

	_, err := idem.CheckOrReserve(context.Background(), fanout.EventReportStatusChanged, "evt-1")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, ts.sink.count())
}

func TestIngestEvent_InvalidPayloadDoesNotReserveKey(t *testing.T) {
	idem := redis.NewIdempotencyService(newRedisClient(t), zap.NewNop())
	ts := newTestServer(t, idem)

	bad := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, map[string]string{}, internalHeader("evt-1"))
	good := ts.do(t, http.MethodPost, "/internal/events/"+fanout.EventReportStatusChanged, statusChanged, internalHeader("evt-1"))

	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, http.StatusAccepted, good.Code)
	assert.Equal(t, 1, ts.sink.count())
}

func TestUserRoleChanged(t *testing.T) {
	tests := []struct {
		name string
		body UserRoleChanged
		want []string
	}{
		{"promotion", UserRoleChanged{UserID: "u1", PreviousRole: "user", Role: db.RoleGovernment}, []string{db.RoleGovernment, "user"}},
		{"same role", UserRoleChanged{UserID: "u1", PreviousRole: db.RoleGovernment, Role: db.RoleGovernment}, []string{db.RoleGovernment}},
		{"no previous role", UserRoleChanged{UserID: "u1", Role: db.RoleGovernment}, []string{db.RoleGovernment}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodPost, "/internal/events/"+EventUserRoleChanged, tt.body, internalHeader(""))

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, ts.roles.forgotten)
			assert.Zero(t, ts.sink.count(), "role changes notify nobody")
		})
	}
}

func TestUserRoleChanged_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+EventUserRoleChanged, map[string]string{"userId": "u1"}, internalHeader(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.roles.forgotten)
}

func TestUserRoleChanged_CacheFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.roles.err = errors.New("redis down")

	rec := ts.do(t, http.MethodPost, "/internal/events/"+EventUserRoleChanged,
		UserRoleChanged{UserID: "u1", Role: db.RoleGovernment}, internalHeader(""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUserRoleChanged_RequiresInternalKey(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/internal/events/"+EventUserRoleChanged,
		UserRoleChanged{UserID: "u1", Role: db.RoleGovernment}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.roles.forgotten)
}

// --- surface ---

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{}}`, rec.Body.String())
}

func TestHealth_Checks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{Name: "database", Check: ok, Required: true}, {Name: "redis", Check: ok}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "optional dependency down",
			checks:     []HealthCheck{{Name: "database", Check: ok, Required: true}, {Name: "redis", Check: down}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "required dependency down",
			checks:     []HealthCheck{{Name: "database", Check: down, Required: true}, {Name: "redis", Check: down}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterConfig{
				Logger:  zap.NewNop(),
				Handler: NewHandler(zap.NewNop(), Deps{}),
				Health:  tt.checks,
			})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestHealth_ReportsRedisAndPushGateway(t *testing.T) {
	client := newRedisClient(t)
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "expo-health", Threshold: 1}, zap.NewNop())
	breaker.Allow()
	breaker.Failure()

	router := NewRouter(RouterConfig{
		Logger:  zap.NewNop(),
		Handler: NewHandler(zap.NewNop(), Deps{}),
		Health: []HealthCheck{
			{Name: "redis", Check: client.Ping},
			{Name: "push_gateway", Check: breaker.Check},
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Checks["redis"])
	assert.Contains(t, resp.Checks["push_gateway"], "circuit breaker is open")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodOptions, "/api/notifications", nil, http.Header{
		"Origin":                        {"http://localhost:8081"},
		"Access-Control-Request-Method": {"GET"},
	})

	assert.Equal(t, "http://localhost:8081", rec.Header().Get("Access-Control-Allow-Origin"))
}
