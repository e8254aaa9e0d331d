package pagecache

import (
	"regexp"
	"testing"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		key     string
		want    bool
	}{
		{"substring hit", Substring("foo"), "foo-bar", true},
		{"substring miss", Substring("foo"), "baz", false},
		{"prefix hit", Prefix("users-"), "users-page-1-10-default-sort", true},
		{"prefix miss", Prefix("users-"), "old-users-page-1", false},
		{"regexp hit", Regexp(regexp.MustCompile(`-page-[0-9]+-`)), "q-page-12-5-default-sort", true},
		{"regexp miss", Regexp(regexp.MustCompile(`^cursor`)), "q-cursor-x", false},
		{"nil regexp", Regexp(nil), "anything", false},
		{"glob hit", Glob("q-cursor-*"), "q-cursor-abc-10-default-sort", true},
		{"glob miss", Glob("q-page-*"), "q-cursor-abc-10-default-sort", false},
		{"bad glob", Glob("q-[page"), "q-page", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Match(tt.key); got != tt.want {
				t.Errorf("%s.Match(%q) = %v, want %v", tt.pattern, tt.key, got, tt.want)
			}
		})
	}
}

func TestCompilePatternPropagatesError(t *testing.T) {
	if _, err := CompilePattern("("); err == nil {
		t.Fatal("expected compile error for malformed expression")
	}

	p, err := CompilePattern("^foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Match("foo-bar") {
		t.Error("compiled pattern should match")
	}
}

func TestInvalidateScoping(t *testing.T) {
	c, _ := newTestCache(t, PrefetchStrategy{})
	// "foo" and "baz" query bases give keys "foo-page-..." and "baz-page-...".
	c.Set(pageParams(1), pageResult(1, 1), "foo")
	c.Set(pageParams(1), pageResult(1, 2), "baz")

	if n := c.Invalidate(Substring("foo")); n != 1 {
		t.Fatalf("expected 1 match, got %d", n)
	}

	foo, ok := c.Get(pageParams(1), "foo")
	if !ok || !foo.Stale || len(foo.Data) != 1 {
		t.Errorf("foo entry should be stale and readable, got ok=%v %+v", ok, foo)
	}
	baz, ok := c.Get(pageParams(1), "baz")
	if !ok || baz.Stale {
		t.Errorf("baz entry should be untouched, got ok=%v %+v", ok, baz)
	}
	if c.Len() != 2 {
		t.Errorf("invalidate must not delete, len = %d", c.Len())
	}
}

func TestInvalidateLeavesLoadingState(t *testing.T) {
	c, _ := newTestCache(t, PrefetchStrategy{})
	c.SetLoading(pageParams(1), "foo")

	if n := c.Invalidate(Prefix("foo-")); n != 1 {
		t.Fatalf("expected 1 match, got %d", n)
	}
	if !c.IsLoading(pageParams(1), "foo") {
		t.Error("invalidate should not touch the loading set")
	}
}
