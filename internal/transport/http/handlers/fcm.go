package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/middleware"
	"github.com/ArsPalazzz/memora-api-sub000/internal/usecase"
)

// FcmTokenUsecase manages device push tokens.
type FcmTokenUsecase interface {
	Subscribe(ctx context.Context, userSub string, input usecase.SubscribeInput) error
	Unsubscribe(ctx context.Context, userSub, token string) error
}

// FcmTokenHandler exposes push token registration.
type FcmTokenHandler struct {
	tokens FcmTokenUsecase
}

// NewFcmTokenHandler constructs a push token handler.
func NewFcmTokenHandler(tokens FcmTokenUsecase) *FcmTokenHandler {
	return &FcmTokenHandler{tokens: tokens}
}

// RegisterRoutes binds the token routes to the provided group.
func (h *FcmTokenHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("", h.Subscribe)
	r.DELETE("", h.Unsubscribe)
}

// Subscribe godoc
// @Summary Register a device push token
// @Tags Notifications
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SubscribeRequest true "Device token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/notifications/fcm-tokens [post]
func (h *FcmTokenHandler) Subscribe(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	err := h.tokens.Subscribe(c.Request.Context(), userSub, usecase.SubscribeInput{
		Token:      req.Token,
		DeviceInfo: req.DeviceInfo,
		Platform:   req.Platform,
		Replaces:   req.Replaces,
	})
	if err != nil {
		cases := []ErrorCase{{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "token is required"}}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to register token")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "subscribed"})
}

// Unsubscribe godoc
// @Summary Remove a device push token
// @Tags Notifications
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body UnsubscribeRequest true "Device token"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/notifications/fcm-tokens [delete]
func (h *FcmTokenHandler) Unsubscribe(c *gin.Context) {
	userSub, ok := h.authorize(c)
	if !ok {
		return
	}

	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	if err := h.tokens.Unsubscribe(c.Request.Context(), userSub, req.Token); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "token is required"},
			{Err: usecase.ErrTokenNotFound, Status: http.StatusNotFound, Message: "token not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to remove token")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "unsubscribed"})
}

func (h *FcmTokenHandler) authorize(c *gin.Context) (string, bool) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "notification service unavailable"))
		return "", false
	}
	userSub, ok := middleware.GetAuthenticatedUserSub(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}
	return userSub, true
}
