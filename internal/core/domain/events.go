package domain

import "time"

// GameSessionFinishedEvent represents the payload for memora.game_session.finished messages.
type GameSessionFinishedEvent struct {
	EventID    string
	SessionSub string
	UserSub    string
	Kind       SessionKind
	Reason     string
	Total      int
	Answered   int
	Correct    int
	FinishedAt time.Time
}

// ReviewBatchNotifiedEvent represents the payload for memora.review_batch.notified messages.
type ReviewBatchNotifiedEvent struct {
	EventID    string
	BatchSub   string
	UserSub    string
	DueCount   int
	CardCount  int
	Delivered  int
	Failed     int
	NotifiedAt time.Time
}

// FcmTokenDeactivatedEvent represents the payload for memora.fcm_token.deactivated messages.
type FcmTokenDeactivatedEvent struct {
	EventID       string
	UserSub       string
	TokenSuffix   string
	Reason        string
	DeactivatedAt time.Time
}
