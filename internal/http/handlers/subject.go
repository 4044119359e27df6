package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/http/response"
	"github.com/yungbote/vantage-backend/internal/modules/hierarchy"
)

type SubjectHandler struct {
	subjects hierarchy.Service
}

func NewSubjectHandler(subjects hierarchy.Service) *SubjectHandler {
	return &SubjectHandler{subjects: subjects}
}

type createSubjectRequest struct {
	Name               string     `json:"name"`
	ParentID           *uuid.UUID `json:"parentId"`
	ParentAbsolutePath *string    `json:"parentAbsolutePath"`
	IsPublished        bool       `json:"isPublished"`
	Description        string     `json:"description"`
	HelpEmail          *string    `json:"helpEmail"`
	HelpURL            *string    `json:"helpUrl"`
	ImageURL           *string    `json:"imageUrl"`
}

// POST /api/subjects
func (h *SubjectHandler) Create(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, decodeError(err))
		return
	}
	subj, err := h.subjects.Create(c.Request.Context(), &monitor.Subject{
		Name:               req.Name,
		ParentID:           req.ParentID,
		ParentAbsolutePath: req.ParentAbsolutePath,
		IsPublished:        req.IsPublished,
		Description:        req.Description,
		HelpEmail:          req.HelpEmail,
		HelpURL:            req.HelpURL,
		ImageURL:           req.ImageURL,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subject": subj})
}

// GET /api/subjects/:id
// The key may be a uuid or an absolute path.
func (h *SubjectHandler) Get(c *gin.Context) {
	key := c.Param("id")
	var (
		subj *monitor.Subject
		err  error
	)
	if id, perr := uuid.Parse(key); perr == nil {
		subj, err = h.subjects.Get(c.Request.Context(), id)
	} else {
		subj, err = h.subjects.GetByPath(c.Request.Context(), key)
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"subject": subj})
}

// PATCH /api/subjects/:id
func (h *SubjectHandler) Update(c *gin.Context) {
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
	patch, err := subjectPatch(body)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	subj, err := h.subjects.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"subject": subj})
}

// DELETE /api/subjects/:id
func (h *SubjectHandler) Delete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.subjects.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func subjectPatch(body patchBody) (hierarchy.SubjectPatch, error) {
	var (
		p   hierarchy.SubjectPatch
		err error
	)
	if p.Name, err = body.text("name"); err != nil {
		return p, err
	}
	if body.has("parentId") || body.has("parentAbsolutePath") {
		ref := &hierarchy.ParentRef{}
		if ref.ID, err = body.id("parentId"); err != nil {
			return p, err
		}
		if ref.AbsolutePath, err = body.text("parentAbsolutePath"); err != nil {
			return p, err
		}
		if ref.AbsolutePath != nil && *ref.AbsolutePath == "" {
			ref.AbsolutePath = nil
		}
		p.Parent = ref
	}
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
	if p.ImageURL, err = body.text("imageUrl"); err != nil {
		return p, err
	}
	return p, nil
}
