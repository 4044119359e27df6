package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAppWiresWritesThroughToRealtime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("REALTIME_BUS", "local")
	t.Setenv("EFFECTS_ASYNC", "false")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("OTEL_ENABLED", "false")

	ctx := context.Background()
	a, err := New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.Close(closeCtx)
	})
	require.NoError(t, a.Start(ctx))

	hub := a.Services.Hub
	client := hub.NewClient()
	hub.AddChannel(client, "subject.add")

	req := httptest.NewRequest(http.MethodPost, "/api/subjects", bytes.NewReader([]byte(`{"name":"edge","isPublished":true}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	select {
	case msg := <-client.Outbound:
		require.Equal(t, "subject.add", msg.Channel)
		require.Equal(t, "edge", msg.Data["absolutePath"])
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a subject.add message on the hub")
	}

	rec = httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
