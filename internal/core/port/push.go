package port

import (
	"context"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// PushSender delivers a notification to one device token. Failures are reported in the result, never returned.
type PushSender interface {
	Send(ctx context.Context, token string, msg domain.PushMessage) domain.PushResult
}
