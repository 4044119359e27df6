package cache

import "testing"

func TestKeyScheme(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{SubjectKey("Root.Child"), "samsto:subject:root.child"},
		{AspectKey("CPU"), "samsto:aspect:cpu"},
		{SampleKey("Root.Child", "CPU"), "samsto:sample:root.child|cpu"},
		{SubjectAspectsKey("Root"), "samsto:subaspmap:root"},
		{AspectSubjectsKey("CPU"), "samsto:aspsubmap:cpu"},
		{SubjectIndexKey, "samsto:subjects"},
		{AspectIndexKey, "samsto:aspects"},
		{SampleIndexKey, "samsto:samples"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key: want %q got %q", tc.want, tc.got)
		}
	}
}

func TestParseSampleKey(t *testing.T) {
	subj, asp, ok := ParseSampleKey(SampleKey("a.b.c", "latency"))
	if !ok || subj != "a.b.c" || asp != "latency" {
		t.Fatalf("ParseSampleKey: got %q %q %v", subj, asp, ok)
	}
	for _, bad := range []string{"samsto:subject:a", "samsto:sample:nosep", "samsto:sample:|x", "samsto:sample:x|"} {
		if _, _, ok := ParseSampleKey(bad); ok {
			t.Fatalf("ParseSampleKey(%q) should fail", bad)
		}
	}
}

func TestSubjectPrefixDoesNotMatchSiblingPaths(t *testing.T) {
	prefix := SampleKeyPrefixForSubject("a")
	if key := SampleKey("a.b", "x"); len(key) >= len(prefix) && key[:len(prefix)] == prefix {
		t.Fatalf("prefix %q must not match descendant sample %q", prefix, key)
	}
	if key := SampleKey("ab", "x"); key[:len(prefix)] == prefix {
		t.Fatalf("prefix %q must not match sibling sample %q", prefix, key)
	}
}
