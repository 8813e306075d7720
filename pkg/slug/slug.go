package slug

import "regexp"

var validShape = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// MaxLength is the longest handle the catalog accepts.
const MaxLength = 255

// IsValid reports whether handle is already in canonical form: lowercase
// alphanumeric words joined by single hyphens.
func IsValid(handle string) bool {
	return len(handle) <= MaxLength && validShape.MatchString(handle)
}
