package docstore

import (
	"fmt"
	"strings"
)

// Join builds a path from segments. Segments may themselves contain slashes.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func validSegments(p string) ([]string, bool) {
	segs := split(p)
	if len(segs) == 0 {
		return nil, false
	}
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return nil, false
		}
	}
	return segs, true
}

// ValidateDocPath checks that p addresses a document.
func ValidateDocPath(p string) error {
	segs, ok := validSegments(p)
	if !ok || len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, p)
	}
	return nil
}

// ValidateCollectionPath checks that p addresses a collection.
func ValidateCollectionPath(p string) error {
	segs, ok := validSegments(p)
	if !ok || len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, p)
	}
	return nil
}

// ID returns the last segment of a path.
func ID(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Parent returns the path one segment up: the collection of a document, or the owning
// document of a collection ("" for root collections).
func Parent(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
