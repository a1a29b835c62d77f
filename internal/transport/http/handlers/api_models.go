package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StartGameRequest starts practice over a desk.
type StartGameRequest struct {
	DeskSub string `json:"desk_sub" binding:"required"`
}

// StartReviewRequest starts a session over a notified review batch.
type StartReviewRequest struct {
	BatchSub string `json:"batch_sub" binding:"required"`
}

// StartSessionResponse returns the created session.
type StartSessionResponse struct {
	SessionSub string `json:"session_sub"`
}

// NextCardResponse is the card currently presented to the player.
type NextCardResponse struct {
	SessionSub string   `json:"session_sub"`
	CardSub    string   `json:"card_sub"`
	Position   int      `json:"position"`
	Direction  string   `json:"direction"`
	Prompt     string   `json:"prompt"`
	Variants   []string `json:"variants"`
}

// AnswerRequest carries the player's answer to the current card.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// AnswerResponse reports the outcome of an answer.
type AnswerResponse struct {
	IsCorrect       bool     `json:"is_correct"`
	Finished        bool     `json:"finished"`
	CorrectVariants []string `json:"correct_variants"`
}

// GradeRequest carries an optional explicit SM-2 quality.
type GradeRequest struct {
	Quality *int `json:"quality"`
}

// SrsResponse describes the updated schedule of a card.
type SrsResponse struct {
	CardSub      string     `json:"card_sub"`
	Repetitions  int        `json:"repetitions"`
	IntervalDays int        `json:"interval_days"`
	EaseFactor   float64    `json:"ease_factor"`
	NextReview   time.Time  `json:"next_review"`
	LastReview   *time.Time `json:"last_review,omitempty"`
}

// SessionSummaryResponse aggregates the answers of a finished session.
type SessionSummaryResponse struct {
	SessionSub string     `json:"session_sub"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Answered   int        `json:"answered"`
	Correct    int        `json:"correct"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SubscribeRequest registers a device push token.
type SubscribeRequest struct {
	Token      string  `json:"token" binding:"required"`
	DeviceInfo *string `json:"device_info"`
	Platform   *string `json:"platform"`
	Replaces   string  `json:"replaces"`
}

// UnsubscribeRequest removes a device push token.
type UnsubscribeRequest struct {
	Token string `json:"token" binding:"required"`
}

func newNextCardResponse(card domain.SessionCard) NextCardResponse {
	variants := card.PromptVariants()
	if variants == nil {
		variants = []string{}
	}
	return NextCardResponse{
		SessionSub: card.SessionSub,
		CardSub:    card.CardSub,
		Position:   card.Position,
		Direction:  string(card.Direction),
		Prompt:     card.Prompt(),
		Variants:   variants,
	}
}

func newSrsResponse(state domain.SrsState) SrsResponse {
	return SrsResponse{
		CardSub:      state.CardSub,
		Repetitions:  state.Repetitions,
		IntervalDays: state.IntervalDays,
		EaseFactor:   state.EaseFactor,
		NextReview:   state.NextReview,
		LastReview:   state.LastReview,
	}
}

func newSessionSummaryResponse(summary domain.SessionSummary) SessionSummaryResponse {
	return SessionSummaryResponse{
		SessionSub: summary.SessionSub,
		Status:     string(summary.Status),
		Total:      summary.Total,
		Answered:   summary.Answered,
		Correct:    summary.Correct,
		FinishedAt: summary.FinishedAt,
	}
}
