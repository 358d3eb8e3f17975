package token

import "testing"

func TestMatchPath(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/*/c", "a/x/c", true},
		{"a/*/c", "a/x/y/c", false},
		{"a/**", "a/b/c/d", true},
		{"a/**", "a", true},
		{"a/**", "a/b", true},
		{"secret/data/**", "secret/data/app/db", true},
		{"secret/data/**", "secret/metadata/app/db", false},
	}
	for _, c := range cases {
		got := MatchPath(c.pattern, c.path)
		if got != c.want {
			t.Errorf("MatchPath(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
