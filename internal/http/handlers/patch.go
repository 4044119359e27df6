package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

// patchBody keeps the raw value of every field the client sent so an absent
// field can be told apart from an explicit null.
type patchBody map[string]json.RawMessage

func (p patchBody) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p patchBody) isNull(key string) bool {
	raw, ok := p[key]
	return ok && strings.TrimSpace(string(raw)) == "null"
}

func (p patchBody) text(key string) (*string, error) {
	if !p.has(key) {
		return nil, nil
	}
	if p.isNull(key) {
		empty := ""
		return &empty, nil
	}
	var v string
	if err := json.Unmarshal(p[key], &v); err != nil {
		return nil, fieldError(key, "string")
	}
	return &v, nil
}

func (p patchBody) flag(key string) (*bool, error) {
	if !p.has(key) || p.isNull(key) {
		return nil, nil
	}
	var v bool
	if err := json.Unmarshal(p[key], &v); err != nil {
		return nil, fieldError(key, "boolean")
	}
	return &v, nil
}

// id returns nil for an explicit null or an empty string.
func (p patchBody) id(key string) (*uuid.UUID, error) {
	s, err := p.text(key)
	if err != nil || s == nil || *s == "" {
		return nil, err
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apierr.Newf(apierr.ValidationError, "%s must be a uuid", key)
	}
	return &id, nil
}

func (p patchBody) raw(key string) *json.RawMessage {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	return &raw
}

func fieldError(key, want string) error {
	return apierr.New(apierr.ValidationError, fmt.Errorf("%s must be a %s", key, want))
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apierr.Newf(apierr.ValidationError, "invalid id %q", raw)
	}
	return id, nil
}

func decodeError(err error) error {
	return apierr.New(apierr.ValidationError, fmt.Errorf("invalid request body: %w", err))
}
