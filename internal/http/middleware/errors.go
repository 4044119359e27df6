package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

// errorName is the apierr name recorded on c, "internal" for an untyped 5xx,
// or "" when the request did not fail.
func errorName(c *gin.Context) string {
	if ae := domainError(c); ae != nil {
		return ae.Name
	}
	if c.Writer.Status() >= 500 {
		return "internal"
	}
	return ""
}

func domainError(c *gin.Context) *apierr.Error {
	for _, e := range c.Errors {
		if ae, ok := apierr.As(e.Err); ok {
			return ae
		}
	}
	return nil
}
