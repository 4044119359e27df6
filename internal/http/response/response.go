package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Name    string `json:"name,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError renders err with the status of its apierr class. Anything
// else is a 500.
func RespondError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	if ae, ok := apierr.As(err); ok {
		c.JSON(ae.Status, ErrorEnvelope{Error: APIError{
			Message: ae.Error(),
			Code:    ae.Code,
			Name:    ae.Name,
		}})
		return
	}
	RespondStatus(c, http.StatusInternalServerError, err)
}

// RespondStatus renders a plain error envelope with an explicit status.
func RespondStatus(c *gin.Context, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
