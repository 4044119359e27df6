package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/vantage-backend/internal/http/response"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

func observedRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}))
	return r, logs
}

func TestRequestLoggerRecordsDomainError(t *testing.T) {
	r, logs := observedRouter(t)
	r.GET("/api/subjects/:id", func(c *gin.Context) {
		response.RespondError(c, apierr.Newf(apierr.SubjectNotFound, "subject %s not found", c.Param("id")))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subjects/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, "/api/subjects/:id", fields["path"])
	require.Equal(t, apierr.SubjectNotFound, fields["error_name"])
	require.EqualValues(t, apierr.CodeOf(apierr.SubjectNotFound), fields["error_code"])
	require.Equal(t, string(apierr.KindNotFound), fields["error_kind"])
}

func TestRequestLoggerUntypedFailure(t *testing.T) {
	r, logs := observedRouter(t)
	r.GET("/boom", func(c *gin.Context) {
		response.RespondError(c, errors.New("db down"))
	})
	r.GET("/fine", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/boom", "/fine"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.NotContains(t, entries[0].ContextMap(), "error_name")
	require.Contains(t, entries[0].ContextMap()["errors"], "db down")
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.NotContains(t, entries[1].ContextMap(), "errors")
}

func TestErrorName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		status int
		err    error
		want   string
	}{
		{name: "typed", status: http.StatusConflict, err: apierr.Newf(apierr.DuplicateResourceName, "taken"), want: apierr.DuplicateResourceName},
		{name: "untyped 5xx", status: http.StatusInternalServerError, err: errors.New("boom"), want: "internal"},
		{name: "ok", status: http.StatusOK, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			if tc.err != nil {
				_ = c.Error(tc.err)
			}
			c.Status(tc.status)
			c.Writer.WriteHeaderNow()
			if got := errorName(c); got != tc.want {
				t.Fatalf("errorName: want %q got %q", tc.want, got)
			}
		})
	}
}
