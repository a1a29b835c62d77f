package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError writes the first case matching err. Unmatched errors get the fallback and are attached to
// the gin context so the access log records the cause.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	if cs, ok := matchErrorCase(err, cases); ok {
		c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

func matchErrorCase(err error, cases []ErrorCase) (ErrorCase, bool) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			return cs, true
		}
	}
	return ErrorCase{}, false
}
