package push

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/logger"
)

const (
	defaultRatePerSecond = 50
	defaultBurst         = 10
	androidChannelID     = "review_reminders"
)

var invalidTokenMarkers = []string{
	"registration-token-not-registered",
	"invalid-registration-token",
	"requested entity was not found",
	"not a valid fcm registration token",
	"unregistered",
	"senderid mismatch",
	"sender_id_mismatch",
}

// IsInvalidTokenError reports whether a delivery error means the device token will never work again.
func IsInvalidTokenError(err error) bool {
	if err == nil {
		return false
	}
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range invalidTokenMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client  messageSender
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFCMSender initialises a Firebase app from the configured credentials.
func NewFCMSender(ctx context.Context, cfg config.PushSettings, log *zap.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}

	return newFCMSender(client, cfg.RatePerSecond, cfg.Burst, log), nil
}

func newFCMSender(client messageSender, perSecond float64, burst int, log *zap.Logger) *FCMSender {
	if log == nil {
		log = zap.NewNop()
	}
	if perSecond <= 0 {
		perSecond = defaultRatePerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &FCMSender{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  log,
	}
}

// Send delivers msg to one token. Failures are classified in the result and never returned.
func (s *FCMSender) Send(ctx context.Context, token string, msg domain.PushMessage) domain.PushResult {
	result := domain.PushResult{Token: token}

	if err := s.limiter.Wait(ctx); err != nil {
		result.Err = fmt.Errorf("push throttle: %w", err)
		return result
	}

	id, err := s.client.Send(ctx, buildMessage(token, msg))
	if err != nil {
		result.Err = err
		result.InvalidToken = IsInvalidTokenError(err)
		s.logger.Warn("push delivery failed",
			zap.String("token", logger.MaskToken(token)),
			zap.Bool("invalid_token", result.InvalidToken),
			zap.Error(err),
		)
		return result
	}

	result.Success = true
	result.MessageID = id
	return result
}

func buildMessage(token string, msg domain.PushMessage) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: androidChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}

// LoggingSender records notifications in the log. It stands in for FCM when no credentials are configured.
type LoggingSender struct {
	logger *zap.Logger
}

// NewLoggingSender constructs a LoggingSender.
func NewLoggingSender(log *zap.Logger) *LoggingSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingSender{logger: log}
}

// Send logs the message and reports success.
func (s *LoggingSender) Send(ctx context.Context, token string, msg domain.PushMessage) domain.PushResult {
	if err := ctx.Err(); err != nil {
		return domain.PushResult{Token: token, Err: err}
	}
	s.logger.Info("push notification",
		zap.String("token", logger.MaskToken(token)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)
	return domain.PushResult{Token: token, Success: true, MessageID: "logged"}
}

// New picks the FCM sender when credentials are configured and falls back to logging otherwise.
func New(ctx context.Context, cfg config.PushSettings, log *zap.Logger) (port.PushSender, error) {
	if cfg.CredentialsFile == "" && cfg.ProjectID == "" {
		if log != nil {
			log.Warn("fcm credentials not configured, push notifications are logged only")
		}
		return NewLoggingSender(log), nil
	}
	return NewFCMSender(ctx, cfg, log)
}

var (
	_ port.PushSender = (*FCMSender)(nil)
	_ port.PushSender = (*LoggingSender)(nil)
)
