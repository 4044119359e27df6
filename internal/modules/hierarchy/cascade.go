package hierarchy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
)

// PathChange records a descendant whose path was rewritten.
type PathChange struct {
	Subject *monitor.Subject
	OldPath string
}

// RewriteDescendants recomputes the linkage of every subject in subtree
// below root, which already carries its new path; oldRootPath is the path
// root had when subtree was loaded. subtree is mutated in place and each
// descendant is visited once, breadth first.
func RewriteDescendants(root *monitor.Subject, oldRootPath string, subtree []*monitor.Subject) []PathChange {
	if len(subtree) == 0 {
		return nil
	}

	// Arena: children are addressed by index, grouped under their parent id.
	byParent := make(map[uuid.UUID][]int, len(subtree))
	byParentPath := make(map[string][]int)
	for i, s := range subtree {
		if s.ParentID != nil {
			byParent[*s.ParentID] = append(byParent[*s.ParentID], i)
			continue
		}
		if s.ParentAbsolutePath != nil {
			key := strings.ToLower(*s.ParentAbsolutePath)
			byParentPath[key] = append(byParentPath[key], i)
		}
	}

	type frame struct {
		id      uuid.UUID
		oldPath string
		newPath string
	}
	visited := make([]bool, len(subtree))
	changes := make([]PathChange, 0, len(subtree))
	queue := []frame{{id: root.ID, oldPath: oldRootPath, newPath: root.AbsolutePath}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		kids := byParent[cur.id]
		kids = append(kids, byParentPath[strings.ToLower(cur.oldPath)]...)
		for _, i := range kids {
			if visited[i] {
				continue
			}
			visited[i] = true
			child := subtree[i]
			old := child.AbsolutePath
			pid := cur.id
			ppath := cur.newPath
			child.ParentID = &pid
			child.ParentAbsolutePath = &ppath
			child.AbsolutePath = JoinPath(cur.newPath, child.Name)
			changes = append(changes, PathChange{Subject: child, OldPath: old})
			queue = append(queue, frame{id: child.ID, oldPath: old, newPath: child.AbsolutePath})
		}
	}
	return changes
}
