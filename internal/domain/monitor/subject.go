package monitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subject is a node in the monitored-entity tree. AbsolutePath, ParentID,
// ParentAbsolutePath and ChildCount are maintained by the hierarchy service;
// callers only supply Name and one of the parent pointers.
type Subject struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"column:name;not null" json:"name" validate:"required,resourcename"`

	AbsolutePath       string     `gorm:"column:absolute_path;not null;index" json:"absolutePath"`
	ParentID           *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parentId,omitempty"`
	ParentAbsolutePath *string    `gorm:"column:parent_absolute_path" json:"parentAbsolutePath,omitempty"`
	ChildCount         int        `gorm:"column:child_count;not null;default:0" json:"childCount"`

	IsPublished bool `gorm:"column:is_published;not null;default:false" json:"isPublished"`
	IsDeleted   bool `gorm:"column:is_deleted;not null;default:false;index" json:"isDeleted"`

	Description string  `gorm:"column:description;type:text" json:"description,omitempty"`
	HelpEmail   *string `gorm:"column:help_email" json:"helpEmail,omitempty" validate:"omitempty,email"`
	HelpURL     *string `gorm:"column:help_url" json:"helpUrl,omitempty" validate:"omitempty,url"`
	ImageURL    *string `gorm:"column:image_url" json:"imageUrl,omitempty" validate:"omitempty,url"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (Subject) TableName() string { return "subject" }

func (s *Subject) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasParent reports whether either parent pointer is set.
func (s *Subject) HasParent() bool {
	return s.ParentID != nil || (s.ParentAbsolutePath != nil && *s.ParentAbsolutePath != "")
}

// Normalize trims inputs and turns empty optional link fields into nil.
func (s *Subject) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.HelpEmail = emptyToNil(s.HelpEmail)
	s.HelpURL = emptyToNil(s.HelpURL)
	s.ImageURL = emptyToNil(s.ImageURL)
	s.ParentAbsolutePath = emptyToNil(s.ParentAbsolutePath)
	if s.ParentID != nil && *s.ParentID == uuid.Nil {
		s.ParentID = nil
	}
}

// Validate runs the leaf-level field checks.
func (s *Subject) Validate() error {
	return validateStruct(s)
}

// Clone returns a copy that does not share pointer fields.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	c := *s
	c.ParentID = clonePtr(s.ParentID)
	c.ParentAbsolutePath = clonePtr(s.ParentAbsolutePath)
	c.HelpEmail = clonePtr(s.HelpEmail)
	c.HelpURL = clonePtr(s.HelpURL)
	c.ImageURL = clonePtr(s.ImageURL)
	return &c
}

func (s *Subject) EntityType() string { return "subject" }

// BroadcastFields is the full field set a subscriber may receive.
func (s *Subject) BroadcastFields() map[string]any {
	out := map[string]any{
		"id":           s.ID.String(),
		"name":         s.Name,
		"absolutePath": s.AbsolutePath,
		"childCount":   s.ChildCount,
		"isPublished":  s.IsPublished,
		"description":  s.Description,
		"createdAt":    s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":    s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.ParentID != nil {
		out["parentId"] = s.ParentID.String()
	}
	if s.ParentAbsolutePath != nil {
		out["parentAbsolutePath"] = *s.ParentAbsolutePath
	}
	if s.HelpEmail != nil {
		out["helpEmail"] = *s.HelpEmail
	}
	if s.HelpURL != nil {
		out["helpUrl"] = *s.HelpURL
	}
	if s.ImageURL != nil {
		out["imageUrl"] = *s.ImageURL
	}
	return out
}

// IdentityFields are always broadcast so subscribers can route the event.
func (s *Subject) IdentityFields() []string { return []string{"name", "absolutePath"} }

// CacheFields flattens the subject into the string hash stored in the cache.
func (s *Subject) CacheFields() map[string]string {
	out := map[string]string{
		"id":           s.ID.String(),
		"name":         s.Name,
		"absolutePath": s.AbsolutePath,
		"childCount":   strconv.Itoa(s.ChildCount),
		"isPublished":  strconv.FormatBool(s.IsPublished),
		"description":  s.Description,
		"updatedAt":    s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":      strconv.FormatInt(s.UpdatedAt.UnixMicro(), 10),
	}
	if s.ParentID != nil {
		out["parentId"] = s.ParentID.String()
	}
	if s.ParentAbsolutePath != nil {
		out["parentAbsolutePath"] = *s.ParentAbsolutePath
	}
	if s.HelpEmail != nil {
		out["helpEmail"] = *s.HelpEmail
	}
	if s.HelpURL != nil {
		out["helpUrl"] = *s.HelpURL
	}
	if s.ImageURL != nil {
		out["imageUrl"] = *s.ImageURL
	}
	return out
}

func emptyToNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
