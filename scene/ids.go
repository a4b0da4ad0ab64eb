package scene

import "github.com/oklog/ulid/v2"

// NewID returns a fresh "<prefix>-<ULID>" identifier.
func NewID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}
