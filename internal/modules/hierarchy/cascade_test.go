package hierarchy

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
)

func node(name string, parent *monitor.Subject) *monitor.Subject {
	s := &monitor.Subject{ID: uuid.New(), Name: name, AbsolutePath: name}
	if parent != nil {
		pid := parent.ID
		ppath := parent.AbsolutePath
		s.ParentID = &pid
		s.ParentAbsolutePath = &ppath
		s.AbsolutePath = parent.AbsolutePath + "." + name
	}
	return s
}

func TestRewriteDescendantsVisitsEachOnce(t *testing.T) {
	root := node("A", nil)
	b := node("B", root)
	c := node("C", b)
	d := node("D", b)
	e := node("E", c)
	f := node("F", root)
	subtree := []*monitor.Subject{e, d, c, b, f}

	root.Name = "Z"
	root.AbsolutePath = "Z"
	changes := RewriteDescendants(root, "A", subtree)
	if len(changes) != len(subtree) {
		t.Fatalf("changes: want %d got %d", len(subtree), len(changes))
	}

	want := map[*monitor.Subject]string{
		b: "Z.B", c: "Z.B.C", d: "Z.B.D", e: "Z.B.C.E", f: "Z.F",
	}
	seen := map[uuid.UUID]bool{}
	for _, ch := range changes {
		if seen[ch.Subject.ID] {
			t.Fatalf("%s visited twice", ch.Subject.Name)
		}
		seen[ch.Subject.ID] = true
		if ch.Subject.AbsolutePath != want[ch.Subject] {
			t.Fatalf("%s: want %s got %s", ch.Subject.Name, want[ch.Subject], ch.Subject.AbsolutePath)
		}
		if ch.OldPath[0] != 'A' {
			t.Fatalf("old path should start at the old root, got %s", ch.OldPath)
		}
	}
	if *e.ParentAbsolutePath != "Z.B.C" || *e.ParentID != c.ID {
		t.Fatalf("E linkage not mirrored: %s %s", *e.ParentAbsolutePath, *e.ParentID)
	}
	if *b.ParentAbsolutePath != "Z" || *b.ParentID != root.ID {
		t.Fatalf("B linkage not mirrored")
	}
}

func TestRewriteDescendantsFallsBackToParentPath(t *testing.T) {
	root := node("A", nil)
	orphanLinked := node("B", root)
	orphanLinked.ParentID = nil

	root.AbsolutePath = "Q.A"
	changes := RewriteDescendants(root, "A", []*monitor.Subject{orphanLinked})
	if len(changes) != 1 || orphanLinked.AbsolutePath != "Q.A.B" {
		t.Fatalf("unexpected rewrite: %+v path=%s", changes, orphanLinked.AbsolutePath)
	}
	if orphanLinked.ParentID == nil || *orphanLinked.ParentID != root.ID {
		t.Fatalf("parent id should be repaired")
	}
}

func TestRewriteDescendantsEmpty(t *testing.T) {
	if got := RewriteDescendants(node("A", nil), "A", nil); got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}
