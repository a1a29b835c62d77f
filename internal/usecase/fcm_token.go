package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	appLogger "github.com/ArsPalazzz/memora-api-sub000/internal/infra/logger"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/telemetry"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

// ErrTokenNotFound indicates that the push token is unknown to the caller.
var ErrTokenNotFound = errors.New("push token not found")

const defaultMaxActiveTokens = 5

// SubscribeInput describes a device registering for push notifications.
type SubscribeInput struct {
	Token      string
	DeviceInfo *string
	Platform   *string
	// Replaces is a previous token of the same device rotated by the provider.
	Replaces string
}

// FcmTokenService manages the push tokens registered by users.
type FcmTokenService struct {
	tokens    port.FcmTokenRepository
	tx        port.Transactor
	events    port.EventPublisher
	metrics   *telemetry.ReviewMetrics
	logger    *zap.Logger
	maxActive int
	now       func() time.Time
}

// NewFcmTokenService constructs a FcmTokenService.
func NewFcmTokenService(tokens port.FcmTokenRepository, tx port.Transactor, events port.EventPublisher, logger *zap.Logger) *FcmTokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FcmTokenService{
		tokens:    tokens,
		tx:        tx,
		events:    events,
		logger:    logger,
		maxActive: defaultMaxActiveTokens,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *FcmTokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMaxActiveTokens sets how many devices a user may keep active.
func (s *FcmTokenService) WithMaxActiveTokens(n int) *FcmTokenService {
	if n > 0 {
		s.maxActive = n
	}
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *FcmTokenService) WithMetrics(metrics *telemetry.ReviewMetrics) *FcmTokenService {
	s.metrics = metrics
	return s
}

type deactivation struct {
	token  string
	reason string
}

// Subscribe registers or refreshes a device token, retires the token it replaces and evicts the oldest tokens beyond the limit.
func (s *FcmTokenService) Subscribe(ctx context.Context, userSub string, input SubscribeInput) error {
	userSub = strings.TrimSpace(userSub)
	token := strings.TrimSpace(input.Token)
	if userSub == "" || token == "" {
		return ErrInvalidInput
	}
	replaces := strings.TrimSpace(input.Replaces)
	now := s.now()

	var retired []deactivation
	err := s.tx.WithinTx(ctx, func(repos port.TxRepositories) error {
		err := repos.Tokens.UpsertToken(ctx, domain.FcmToken{
			UserSub:    userSub,
			Token:      token,
			DeviceInfo: input.DeviceInfo,
			Platform:   input.Platform,
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("upsert token: %w", err)
		}

		if replaces != "" && replaces != token {
			previous, err := repos.Tokens.GetToken(ctx, replaces)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return fmt.Errorf("get replaced token: %w", err)
			case previous.UserSub == userSub && previous.IsActive:
				if err := repos.Tokens.DeactivateToken(ctx, replaces, domain.TokenReasonReplaced, now); err != nil {
					return fmt.Errorf("deactivate replaced token: %w", err)
				}
				retired = append(retired, deactivation{token: replaces, reason: domain.TokenReasonReplaced})
			}
		}

		active, err := repos.Tokens.GetActiveFcmTokens(ctx, userSub)
		if err != nil {
			return fmt.Errorf("list active tokens: %w", err)
		}
		for i := s.maxActive; i < len(active); i++ {
			if err := repos.Tokens.DeactivateToken(ctx, active[i].Token, domain.TokenReasonTokenLimit, now); err != nil {
				return fmt.Errorf("evict token: %w", err)
			}
			retired = append(retired, deactivation{token: active[i].Token, reason: domain.TokenReasonTokenLimit})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range retired {
		s.metrics.TokenDeactivated(d.reason)
		publishTokenDeactivated(ctx, s.events, s.logger, userSub, d.token, d.reason, now)
	}
	s.logger.Info("push token subscribed",
		zap.String("user_sub", userSub),
		zap.String("token", appLogger.MaskToken(token)),
		zap.Int("retired", len(retired)),
	)
	return nil
}

// Unsubscribe deactivates a token owned by the caller. Deactivating an inactive token is a no-op.
func (s *FcmTokenService) Unsubscribe(ctx context.Context, userSub, token string) error {
	userSub = strings.TrimSpace(userSub)
	token = strings.TrimSpace(token)
	if userSub == "" || token == "" {
		return ErrInvalidInput
	}

	existing, err := s.tokens.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("get token: %w", err)
	}
	if existing.UserSub != userSub {
		return ErrTokenNotFound
	}
	if !existing.IsActive {
		return nil
	}

	now := s.now()
	if err := s.tokens.DeactivateToken(ctx, token, domain.TokenReasonLogout, now); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	s.metrics.TokenDeactivated(domain.TokenReasonLogout)
	publishTokenDeactivated(ctx, s.events, s.logger, userSub, token, domain.TokenReasonLogout, now)
	return nil
}

func publishTokenDeactivated(ctx context.Context, events port.EventPublisher, logger *zap.Logger, userSub, token, reason string, at time.Time) {
	if events == nil {
		return
	}
	event := domain.FcmTokenDeactivatedEvent{
		EventID:       uuid.NewString(),
		UserSub:       userSub,
		TokenSuffix:   appLogger.MaskToken(token),
		Reason:        reason,
		DeactivatedAt: at,
	}
	if err := events.PublishFcmTokenDeactivated(ctx, event); err != nil {
		logger.Warn("failed to publish token deactivated", zap.String("user_sub", userSub), zap.String("reason", reason), zap.Error(err))
	}
}
