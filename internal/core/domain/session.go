package domain

import "time"

// SessionKind distinguishes free deck practice from review-batch sessions.
type SessionKind string

const (
	SessionKindDesk   SessionKind = "desk"
	SessionKindReview SessionKind = "review"
)

// SessionStatus captures the lifecycle state of a game session.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
	// SessionStatusAborted is set by the stale session reaper.
	SessionStatusAborted SessionStatus = "aborted"
)

// Direction is the presentation side of a session card, fixed at session creation.
type Direction string

const (
	DirectionFrontToBack Direction = "front_to_back"
	DirectionBackToFront Direction = "back_to_front"
)

// Orientation is the desk (or review) setting from which card directions are resolved.
type Orientation string

const (
	OrientationNormal   Orientation = "normal"
	OrientationReversed Orientation = "reversed"
	OrientationMixed    Orientation = "mixed"
)

// GameSession is a persisted quiz run over a desk or a review batch.
type GameSession struct {
	Sub            string
	UserSub        string
	Kind           SessionKind
	DeskSub        *string
	BatchSub       *string
	Status         SessionStatus
	CreatedAt      time.Time
	FinishedAt     *time.Time
	LastActivityAt time.Time
}

// IsActive reports whether the session still accepts answers.
func (s GameSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// OwnedBy reports whether the session belongs to the supplied user.
func (s GameSession) OwnedBy(userSub string) bool {
	return s.UserSub != "" && s.UserSub == userSub
}

// SessionCard is one queued card of a session. Answer fields are written exactly once.
type SessionCard struct {
	ID            int64
	SessionSub    string
	CardSub       string
	Position      int
	Direction     Direction
	FrontVariants []string
	BackVariants  []string
	Answer        *string
	IsCorrect     *bool
	AnsweredAt    *time.Time
}

// IsAnswered reports whether an answer has been recorded.
func (c SessionCard) IsAnswered() bool {
	return c.AnsweredAt != nil
}

// PromptVariants returns the side shown to the player.
func (c SessionCard) PromptVariants() []string {
	if c.Direction == DirectionBackToFront {
		return c.BackVariants
	}
	return c.FrontVariants
}

// CorrectVariants returns the side the player has to produce.
func (c SessionCard) CorrectVariants() []string {
	if c.Direction == DirectionBackToFront {
		return c.FrontVariants
	}
	return c.BackVariants
}

// Prompt returns the primary text of the shown side.
func (c SessionCard) Prompt() string {
	variants := c.PromptVariants()
	if len(variants) == 0 {
		return ""
	}
	return variants[0]
}

// NewSessionCard is the insert payload for a queued card.
type NewSessionCard struct {
	CardSub   string
	Direction Direction
}

// DeskSettings controls how desk practice sessions are populated.
type DeskSettings struct {
	CardsPerSession int
	Orientation     Orientation
}

// AnswerResult is returned to the player after each answer.
type AnswerResult struct {
	IsCorrect       bool
	Finished        bool
	CorrectVariants []string
}

// SessionSummary aggregates the answers of a session.
type SessionSummary struct {
	SessionSub string
	Status     SessionStatus
	Total      int
	Answered   int
	Correct    int
	FinishedAt *time.Time
}
