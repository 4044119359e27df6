package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/http/response"
	"github.com/yungbote/vantage-backend/internal/modules/aspects"
)

type AspectHandler struct {
	aspects aspects.Service
}

func NewAspectHandler(aspects aspects.Service) *AspectHandler {
	return &AspectHandler{aspects: aspects}
}

type createAspectRequest struct {
	Name          string         `json:"name"`
	ValueType     string         `json:"valueType"`
	CriticalRange datatypes.JSON `json:"criticalRange"`
	WarningRange  datatypes.JSON `json:"warningRange"`
	InfoRange     datatypes.JSON `json:"infoRange"`
	OKRange       datatypes.JSON `json:"okRange"`
	IsPublished   bool           `json:"isPublished"`
	Description   string         `json:"description"`
	HelpEmail     *string        `json:"helpEmail"`
	HelpURL       *string        `json:"helpUrl"`
}

// POST /api/aspects
func (h *AspectHandler) Create(c *gin.Context) {
	var req createAspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, decodeError(err))
		return
	}
	a, err := h.aspects.Create(c.Request.Context(), &monitor.Aspect{
		Name:          req.Name,
		ValueType:     monitor.ValueType(req.ValueType),
		CriticalRange: req.CriticalRange,
		WarningRange:  req.WarningRange,
		InfoRange:     req.InfoRange,
		OKRange:       req.OKRange,
		IsPublished:   req.IsPublished,
		Description:   req.Description,
		HelpEmail:     req.HelpEmail,
		HelpURL:       req.HelpURL,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"aspect": a})
}

// GET /api/aspects/:id
func (h *AspectHandler) Get(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	a, err := h.aspects.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"aspect": a})
}

// PATCH /api/aspects/:id
func (h *AspectHandler) Update(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var body patchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, decodeError(err))
		return
	}
	patch, err := aspectPatch(body)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	a, err := h.aspects.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"aspect": a})
}

// DELETE /api/aspects/:id
func (h *AspectHandler) Delete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.aspects.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func aspectPatch(body patchBody) (aspects.AspectPatch, error) {
	var (
		p   aspects.AspectPatch
		err error
	)
	if p.Name, err = body.text("name"); err != nil {
		return p, err
	}
	if !body.isNull("valueType") {
		if p.ValueType, err = body.text("valueType"); err != nil {
			return p, err
		}
	}
	p.CriticalRange = rangeField(body, "criticalRange")
	p.WarningRange = rangeField(body, "warningRange")
	p.InfoRange = rangeField(body, "infoRange")
	p.OKRange = rangeField(body, "okRange")
	if p.IsPublished, err = body.flag("isPublished"); err != nil {
		return p, err
	}
	if p.Description, err = body.text("description"); err != nil {
		return p, err
	}
	if p.HelpEmail, err = body.text("helpEmail"); err != nil {
		return p, err
	}
	if p.HelpURL, err = body.text("helpUrl"); err != nil {
		return p, err
	}
	return p, nil
}

// rangeField passes the raw JSON through; the range validator owns the shape
// checks and an explicit null clears the slot.
func rangeField(body patchBody, key string) *datatypes.JSON {
	raw := body.raw(key)
	if raw == nil {
		return nil
	}
	j := datatypes.JSON(*raw)
	return &j
}
