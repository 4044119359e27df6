package monitor

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ValueType string

const (
	ValueTypeBoolean ValueType = "BOOLEAN"
	ValueTypeNumeric ValueType = "NUMERIC"
	ValueTypePercent ValueType = "PERCENT"
)

// ParseValueType is case-insensitive; an empty input defaults to BOOLEAN.
func ParseValueType(raw string) (ValueType, bool) {
	switch ValueType(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", ValueTypeBoolean:
		return ValueTypeBoolean, true
	case ValueTypeNumeric:
		return ValueTypeNumeric, true
	case ValueTypePercent:
		return ValueTypePercent, true
	default:
		return "", false
	}
}

// Status slots in scoring order.
const (
	StatusCritical = "Critical"
	StatusWarning  = "Warning"
	StatusInfo     = "Info"
	StatusOK       = "OK"
	StatusInvalid  = "Invalid"
)

// Aspect is a metric definition. Ranges are stored as raw JSON so malformed
// historical data can still be loaded and repaired.
type Aspect struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;index" json:"name" validate:"required,resourcename"`
	ValueType ValueType `gorm:"column:value_type;not null;default:'BOOLEAN'" json:"valueType" validate:"required,oneof=BOOLEAN NUMERIC PERCENT"`

	CriticalRange datatypes.JSON `gorm:"column:critical_range" json:"criticalRange,omitempty"`
	WarningRange  datatypes.JSON `gorm:"column:warning_range" json:"warningRange,omitempty"`
	InfoRange     datatypes.JSON `gorm:"column:info_range" json:"infoRange,omitempty"`
	OKRange       datatypes.JSON `gorm:"column:ok_range" json:"okRange,omitempty"`

	IsPublished bool `gorm:"column:is_published;not null;default:false" json:"isPublished"`
	IsDeleted   bool `gorm:"column:is_deleted;not null;default:false;index" json:"isDeleted"`

	Description string  `gorm:"column:description;type:text" json:"description,omitempty"`
	HelpEmail   *string `gorm:"column:help_email" json:"helpEmail,omitempty" validate:"omitempty,email"`
	HelpURL     *string `gorm:"column:help_url" json:"helpUrl,omitempty" validate:"omitempty,url"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (Aspect) TableName() string { return "aspect" }

func (a *Aspect) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Aspect) Normalize() {
	a.Name = strings.TrimSpace(a.Name)
	if vt, ok := ParseValueType(string(a.ValueType)); ok {
		a.ValueType = vt
	}
	a.HelpEmail = emptyToNil(a.HelpEmail)
	a.HelpURL = emptyToNil(a.HelpURL)
}

func (a *Aspect) Validate() error {
	return validateStruct(a)
}

func (a *Aspect) Clone() *Aspect {
	if a == nil {
		return nil
	}
	c := *a
	c.CriticalRange = cloneJSON(a.CriticalRange)
	c.WarningRange = cloneJSON(a.WarningRange)
	c.InfoRange = cloneJSON(a.InfoRange)
	c.OKRange = cloneJSON(a.OKRange)
	c.HelpEmail = clonePtr(a.HelpEmail)
	c.HelpURL = clonePtr(a.HelpURL)
	return &c
}

// RangeSlots returns the four status ranges keyed by status name, in
// scoring order.
func (a *Aspect) RangeSlots() []RangeSlot {
	return []RangeSlot{
		{Status: StatusCritical, Raw: a.CriticalRange},
		{Status: StatusWarning, Raw: a.WarningRange},
		{Status: StatusInfo, Raw: a.InfoRange},
		{Status: StatusOK, Raw: a.OKRange},
	}
}

type RangeSlot struct {
	Status string
	Raw    datatypes.JSON
}

// Assigned reports whether the slot carries a non-null range.
func (r RangeSlot) Assigned() bool {
	raw := strings.TrimSpace(string(r.Raw))
	return raw != "" && raw != "null"
}

func (a *Aspect) CacheFields() map[string]string {
	out := map[string]string{
		"id":          a.ID.String(),
		"name":        a.Name,
		"valueType":   string(a.ValueType),
		"isPublished": strconv.FormatBool(a.IsPublished),
		"description": a.Description,
		"updatedAt":   a.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":     strconv.FormatInt(a.UpdatedAt.UnixMicro(), 10),
	}
	for _, slot := range a.RangeSlots() {
		if slot.Assigned() {
			out[rangeField(slot.Status)] = string(slot.Raw)
		}
	}
	if a.HelpEmail != nil {
		out["helpEmail"] = *a.HelpEmail
	}
	if a.HelpURL != nil {
		out["helpUrl"] = *a.HelpURL
	}
	return out
}

// RangeField is the cache hash field holding the given status range.
func RangeField(status string) string { return rangeField(status) }

func rangeField(status string) string {
	switch status {
	case StatusCritical:
		return "criticalRange"
	case StatusWarning:
		return "warningRange"
	case StatusInfo:
		return "infoRange"
	case StatusOK:
		return "okRange"
	default:
		return strings.ToLower(status) + "Range"
	}
}

func cloneJSON(j datatypes.JSON) datatypes.JSON {
	if j == nil {
		return nil
	}
	return append(datatypes.JSON(nil), j...)
}
