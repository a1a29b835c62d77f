package domain

import "time"

// Deactivation reasons recorded on FCM tokens.
const (
	TokenReasonLogout       = "logout"
	TokenReasonReplaced     = "replaced"
	TokenReasonTokenLimit   = "token_limit"
	TokenReasonInvalidToken = "invalid_token"
)

// FcmToken is a device push token registered by a user.
type FcmToken struct {
	ID                 int64
	UserSub            string
	Token              string
	DeviceInfo         *string
	Platform           *string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeactivatedAt      *time.Time
	DeactivationReason *string
}

// PushMessage is the generic notification payload.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushResult is the classified outcome of a single push delivery.
type PushResult struct {
	Token        string
	Success      bool
	MessageID    string
	Err          error
	InvalidToken bool
}
