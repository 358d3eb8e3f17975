package kv

import (
	"strings"

	"github.com/zvault/zvault/internal/apperr"
)

const maxSegments = 10

// ValidatePath enforces §4.7's path rules before any storage access:
// no empty segments, no ".." segments, no bytes outside
// [A-Za-z0-9_\-/], no null bytes, and at most 10 segments.
func ValidatePath(path string) error {
	if path == "" {
		return apperr.New(apperr.KindInvalidArgument, "path must not be empty")
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		ok := c == '/' || c == '_' || c == '-' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			return apperr.New(apperr.KindInvalidArgument, "path contains invalid byte %q", c)
		}
	}
	segs := strings.Split(path, "/")
	if len(segs) > maxSegments {
		return apperr.New(apperr.KindInvalidArgument, "path has more than %d segments", maxSegments)
	}
	for _, s := range segs {
		if s == "" {
			return apperr.New(apperr.KindInvalidArgument, "path contains an empty segment")
		}
		if s == ".." {
			return apperr.New(apperr.KindInvalidArgument, "path contains a %q segment", "..")
		}
	}
	return nil
}
