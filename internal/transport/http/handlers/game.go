package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/middleware"
	"github.com/ArsPalazzz/memora-api-sub000/internal/usecase"
)

// GameUsecase is the session state machine consumed by GameHandler.
type GameUsecase interface {
	StartGameSession(ctx context.Context, userSub, deskSub string) (string, error)
	StartReviewSession(ctx context.Context, userSub, batchSub string) (string, error)
	GetNextCard(ctx context.Context, userSub, sessionSub string) (*domain.SessionCard, error)
	AnswerCard(ctx context.Context, userSub, sessionSub, answer string) (*domain.AnswerResult, error)
	GradeCard(ctx context.Context, userSub, sessionSub string, quality *int) (*domain.SrsState, error)
	FinishGameSession(ctx context.Context, userSub, sessionSub string) (*domain.SessionSummary, error)
}

var gameErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid request"},
	{Err: usecase.ErrInvalidQuality, Status: http.StatusBadRequest, Message: "quality must be between 0 and 5"},
	{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
	{Err: usecase.ErrSessionForbidden, Status: http.StatusForbidden, Message: "session belongs to another user"},
	{Err: usecase.ErrSessionNotActive, Status: http.StatusBadRequest, Message: "session is not active"},
	{Err: usecase.ErrSessionCompleted, Status: http.StatusBadRequest, Message: "session completed"},
	{Err: usecase.ErrCardNotFound, Status: http.StatusNotFound, Message: "card not found"},
	{Err: usecase.ErrCardAlreadyAnswered, Status: http.StatusConflict, Message: "card already answered"},
	{Err: usecase.ErrDeskNotFound, Status: http.StatusNotFound, Message: "desk not found"},
	{Err: usecase.ErrNoCardsToPlay, Status: http.StatusBadRequest, Message: "no cards to play"},
	{Err: usecase.ErrBatchNotFound, Status: http.StatusNotFound, Message: "review batch not found"},
	{Err: usecase.ErrBatchForbidden, Status: http.StatusForbidden, Message: "review batch belongs to another user"},
}

// GameHandler exposes the game and review session endpoints.
type GameHandler struct {
	games GameUsecase
}

// NewGameHandler constructs a game handler.
func NewGameHandler(games GameUsecase) *GameHandler {
	return &GameHandler{games: games}
}

// RegisterRoutes binds the session routes. answerLimit guards the answer endpoint and may be nil.
func (h *GameHandler) RegisterRoutes(r *gin.RouterGroup, answerLimit gin.HandlerFunc) {
	if r == nil {
		return
	}

	r.POST("/sessions", h.StartGameSession)
	r.POST("/review-sessions", h.StartReviewSession)
	r.GET("/sessions/:session_sub/next", h.GetNextCard)
	if answerLimit != nil {
		r.POST("/sessions/:session_sub/answer", answerLimit, h.AnswerCard)
	} else {
		r.POST("/sessions/:session_sub/answer", h.AnswerCard)
	}
	r.POST("/sessions/:session_sub/grade", h.GradeCard)
	r.POST("/sessions/:session_sub/finish", h.FinishGameSession)
}

// StartGameSession godoc
// @Summary Start a desk practice session
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body StartGameRequest true "Desk to practise"
// @Success 201 {object} StartSessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/game/sessions [post]
func (h *GameHandler) StartGameSession(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DeskSub) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "desk_sub is required"))
		return
	}

	sessionSub, err := h.games.StartGameSession(c.Request.Context(), userSub, strings.TrimSpace(req.DeskSub))
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to start session")
		return
	}

	c.JSON(http.StatusCreated, StartSessionResponse{SessionSub: sessionSub})
}

// StartReviewSession godoc
// @Summary Start a session over a review batch
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body StartReviewRequest true "Batch to review"
// @Success 201 {object} StartSessionResponse
// @Router /api/v1/game/review-sessions [post]
func (h *GameHandler) StartReviewSession(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req StartReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BatchSub) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "batch_sub is required"))
		return
	}

	sessionSub, err := h.games.StartReviewSession(c.Request.Context(), userSub, strings.TrimSpace(req.BatchSub))
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to start review session")
		return
	}

	c.JSON(http.StatusCreated, StartSessionResponse{SessionSub: sessionSub})
}

// GetNextCard godoc
// @Summary Get the next unanswered card
// @Tags Game
// @Security Bearer
// @Produce json
// @Param session_sub path string true "Session"
// @Success 200 {object} NextCardResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/game/sessions/{session_sub}/next [get]
func (h *GameHandler) GetNextCard(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	card, err := h.games.GetNextCard(c.Request.Context(), userSub, c.Param("session_sub"))
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to load next card")
		return
	}

	c.JSON(http.StatusOK, newNextCardResponse(*card))
}

// AnswerCard godoc
// @Summary Answer the current card
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param session_sub path string true "Session"
// @Param request body AnswerRequest true "Answer"
// @Success 200 {object} AnswerResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/game/sessions/{session_sub}/answer [post]
func (h *GameHandler) AnswerCard(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid answer payload"))
		return
	}

	result, err := h.games.AnswerCard(c.Request.Context(), userSub, c.Param("session_sub"), req.Answer)
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to answer card")
		return
	}

	correct := result.CorrectVariants
	if correct == nil {
		correct = []string{}
	}
	c.JSON(http.StatusOK, AnswerResponse{
		IsCorrect:       result.IsCorrect,
		Finished:        result.Finished,
		CorrectVariants: correct,
	})
}

// GradeCard godoc
// @Summary Update the SM-2 schedule of the last answered card
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param session_sub path string true "Session"
// @Param request body GradeRequest false "Explicit quality"
// @Success 200 {object} SrsResponse
// @Router /api/v1/game/sessions/{session_sub}/grade [post]
func (h *GameHandler) GradeCard(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	// the body is optional; without it the quality is derived from the last answer
	var req GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grade payload"))
		return
	}

	state, err := h.games.GradeCard(c.Request.Context(), userSub, c.Param("session_sub"), req.Quality)
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to grade card")
		return
	}

	c.JSON(http.StatusOK, newSrsResponse(*state))
}

// FinishGameSession godoc
// @Summary Finish a session
// @Tags Game
// @Security Bearer
// @Produce json
// @Param session_sub path string true "Session"
// @Success 200 {object} SessionSummaryResponse
// @Router /api/v1/game/sessions/{session_sub}/finish [post]
func (h *GameHandler) FinishGameSession(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	summary, err := h.games.FinishGameSession(c.Request.Context(), userSub, c.Param("session_sub"))
	if err != nil {
		RespondWithMappedError(c, err, gameErrorCases, http.StatusInternalServerError, "failed to finish session")
		return
	}

	c.JSON(http.StatusOK, newSessionSummaryResponse(*summary))
}

func (h *GameHandler) authorize(c *gin.Context) (string, bool) {
	if h.games == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "game service unavailable"))
		return "", false
	}
	userSub, ok := middleware.GetAuthenticatedUserSub(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}
	return userSub, true
}
