package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vantage-backend/internal/http/response"
	"github.com/yungbote/vantage-backend/internal/modules/samples"
)

type SampleHandler struct {
	samples samples.Service
}

func NewSampleHandler(samples samples.Service) *SampleHandler {
	return &SampleHandler{samples: samples}
}

// PUT /api/samples
func (h *SampleHandler) Upsert(c *gin.Context) {
	var in samples.SampleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, decodeError(err))
		return
	}
	smp, err := h.samples.Upsert(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sample": smp.BroadcastFields()})
}

// GET /api/samples?subject=&aspect=
func (h *SampleHandler) Get(c *gin.Context) {
	subject := strings.TrimSpace(c.Query("subject"))
	aspect := strings.TrimSpace(c.Query("aspect"))
	if subject == "" || aspect == "" {
		response.RespondStatus(c, http.StatusBadRequest, errors.New("subject and aspect are required"))
		return
	}
	smp, err := h.samples.Get(c.Request.Context(), subject, aspect)
	if errors.Is(err, samples.ErrSampleNotFound) {
		response.RespondStatus(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sample": smp.BroadcastFields()})
}
