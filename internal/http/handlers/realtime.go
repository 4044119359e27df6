package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub}
}

// GET /api/realtime/stream?channels=subject.update,sample.add
// Without a channels query the client receives every channel.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	channels := splitChannels(c.Query("channels"))
	if len(channels) == 0 {
		channels = realtime.DefaultChannels()
	}

	client := h.Hub.NewClient()
	for _, ch := range channels {
		h.Hub.AddChannel(client, ch)
	}
	h.Log.Info("SSE stream open", "clientID", client.ID.String(), "channels", channels)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.Hub.CloseClient(client)
	h.Log.Debug("SSE stream closed", "clientID", client.ID.String())
}

func splitChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
