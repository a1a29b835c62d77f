package domain

import "time"

// DueUser is a user with enough due cards to be reminded.
type DueUser struct {
	UserSub  string
	DueCount int
}

// ReviewSettings is the per-user configuration of review sessions.
type ReviewSettings struct {
	CardsPerSession int
	Orientation     Orientation
}

// ReviewBatch groups due cards announced to the user by a single push notification.
type ReviewBatch struct {
	Sub        string
	UserSub    string
	CreatedAt  time.Time
	NotifiedAt *time.Time
}

// IsNotified reports whether at least one push was delivered for the batch.
func (b ReviewBatch) IsNotified() bool {
	return b.NotifiedAt != nil
}

// NotifyResult describes the outcome of one batch coordination run for a user.
type NotifyResult struct {
	UserSub     string
	Skipped     bool
	BatchSub    string
	Attached    int
	Sent        int
	Failed      int
	Deactivated int
}

// Notified reports whether the batch was marked as notified.
func (r NotifyResult) Notified() bool {
	return r.Sent > 0
}
