package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MaxClientKeyLength bounds the idempotency key supplied by callers
const MaxClientKeyLength = 255

// CommandContext carries caller-supplied identity for a mutating command
type CommandContext struct {
	TenantID      uuid.UUID
	ActorID       uuid.UUID
	ClientKey     string
	CorrelationID string
}

// Validate checks the fields every mutating command needs
func (c CommandContext) Validate() error {
	if c.TenantID == uuid.Nil {
		return NewValidationError("TENANT_REQUIRED", "tenant id is required")
	}
	key := strings.TrimSpace(c.ClientKey)
	if key == "" {
		return NewValidationError("IDEMPOTENCY_KEY_REQUIRED", "idempotency key is required")
	}
	if len(key) > MaxClientKeyLength {
		return NewValidationError("IDEMPOTENCY_KEY_TOO_LONG", "idempotency key exceeds 255 characters")
	}
	return nil
}

// Correlation returns the correlation id, falling back to the client key
func (c CommandContext) Correlation() string {
	if c.CorrelationID != "" {
		return c.CorrelationID
	}
	return c.ClientKey
}

type commandContextKey struct{}

// WithCommandContext attaches cc to ctx
func WithCommandContext(ctx context.Context, cc CommandContext) context.Context {
	return context.WithValue(ctx, commandContextKey{}, cc)
}

// CommandContextFrom returns the command context attached to ctx
func CommandContextFrom(ctx context.Context) (CommandContext, bool) {
	cc, ok := ctx.Value(commandContextKey{}).(CommandContext)
	return cc, ok
}
