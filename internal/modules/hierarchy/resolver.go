package hierarchy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
)

// PathSeparator joins ancestor names in an absolute path.
const PathSeparator = "."

// ParentLookup finds a live subject by "id" or "absolutePath". It returns
// nil, nil when nothing matches.
type ParentLookup func(field, value string) (*monitor.Subject, error)

// Resolution is the derived linkage of a subject about to be written.
type Resolution struct {
	AbsolutePath       string
	ParentID           *uuid.UUID
	ParentAbsolutePath *string
	Parent             *monitor.Subject
}

// Apply copies the resolved linkage onto s.
func (r Resolution) Apply(s *monitor.Subject) {
	s.AbsolutePath = r.AbsolutePath
	s.ParentID = r.ParentID
	s.ParentAbsolutePath = r.ParentAbsolutePath
}

// ResolvePath computes the absolute path and both parent pointers of s.
// s.AbsolutePath, when set, is taken as the subject's current path and used
// for the cycle check.
func ResolvePath(s *monitor.Subject, find ParentLookup) (Resolution, error) {
	if !s.HasParent() {
		return Resolution{AbsolutePath: s.Name}, nil
	}

	var byID, byPath *monitor.Subject
	var err error
	if s.ParentID != nil {
		byID, err = find("id", s.ParentID.String())
		if err != nil {
			return Resolution{}, err
		}
		if byID == nil {
			return Resolution{}, apierr.Newf(apierr.ParentSubjectNotFound, "parent subject %s not found", s.ParentID)
		}
	}
	if s.ParentAbsolutePath != nil {
		byPath, err = find("absolutePath", *s.ParentAbsolutePath)
		if err != nil {
			return Resolution{}, err
		}
		if byPath == nil {
			return Resolution{}, apierr.Newf(apierr.ParentSubjectNotFound, "parent subject %q not found", *s.ParentAbsolutePath)
		}
	}
	if byID != nil && byPath != nil && byID.ID != byPath.ID {
		return Resolution{}, apierr.Newf(apierr.ParentLinkageMismatch,
			"parentId %s and parentAbsolutePath %q name different subjects", byID.ID, byPath.AbsolutePath)
	}
	parent := byID
	if parent == nil {
		parent = byPath
	}

	if s.ID != uuid.Nil && parent.ID == s.ID {
		return Resolution{}, apierr.Newf(apierr.IllegalSelfParenting, "subject %q cannot be its own parent", s.Name)
	}
	if s.AbsolutePath != "" {
		if strings.EqualFold(parent.AbsolutePath, s.AbsolutePath) {
			return Resolution{}, apierr.Newf(apierr.IllegalSelfParenting, "subject %q cannot be its own parent", s.AbsolutePath)
		}
		if IsDescendantPath(parent.AbsolutePath, s.AbsolutePath) {
			return Resolution{}, apierr.Newf(apierr.IllegalSelfParenting,
				"subject %q cannot move under its own descendant %q", s.AbsolutePath, parent.AbsolutePath)
		}
	}
	if s.IsPublished && !parent.IsPublished {
		return Resolution{}, apierr.Newf(apierr.ParentSubjectNotPublished,
			"cannot publish %q under unpublished parent %q", s.Name, parent.AbsolutePath)
	}

	pid := parent.ID
	ppath := parent.AbsolutePath
	return Resolution{
		AbsolutePath:       JoinPath(parent.AbsolutePath, s.Name),
		ParentID:           &pid,
		ParentAbsolutePath: &ppath,
		Parent:             parent,
	}, nil
}

func JoinPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return parentPath + PathSeparator + name
}

// IsDescendantPath reports whether path lies strictly below ancestor.
func IsDescendantPath(path, ancestor string) bool {
	prefix := strings.ToLower(ancestor) + PathSeparator
	return strings.HasPrefix(strings.ToLower(path), prefix)
}
