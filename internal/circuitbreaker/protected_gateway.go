package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
)

// ProtectedGateway wraps a push.Gateway with a Breaker so a dead push
// provider costs one rejected call per chunk instead of a full HTTP timeout.
type ProtectedGateway struct {
	gateway push.Gateway
	breaker *Breaker
	logger  *zap.Logger
}

// NewProtectedGateway wraps gateway with breaker.
func NewProtectedGateway(gateway push.Gateway, breaker *Breaker, logger *zap.Logger) *ProtectedGateway {
	return &ProtectedGateway{
		gateway: gateway,
		breaker: breaker,
		logger:  logger,
	}
}

// Send forwards the chunk unless the circuit is open. A context cancelled by
// the caller does not count against the gateway.
func (p *ProtectedGateway) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected push chunk",
			zap.String("breaker", p.breaker.cfg.Name),
			zap.Int("chunk_size", len(messages)),
		)
		return nil, fmt.Errorf("%w: %s gateway unavailable", ErrCircuitOpen, p.breaker.cfg.Name)
	}

	tickets, err := p.gateway.Send(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			p.breaker.abandon()
		} else {
			p.breaker.Failure()
		}
		return nil, err
	}

	p.breaker.Success()
	return tickets, nil
}
