// Package filename maps user-supplied labels onto the 8.3 names accepted by
// the recording medium.
package filename

import (
	"strings"

	"github.com/manudelosrios02/datalogger/internal/errcode"
)

const (
	// Extension is appended to every sanitized stem.
	Extension = ".CSV"
	// Fallback is used when nothing survives filtering.
	Fallback = "LOG"
	// MaxStem is the legacy stem length limit.
	MaxStem = 8

	rejected = `/\:*?"<>|`
)

// Sanitize converts a raw label into a legal filename such as "2025_01_.CSV".
//
// Labels containing any of / \ : * ? " < > | are rejected, as are labels whose
// first non-blank character is a dot. A label made only of dots resolves to
// the fallback.
// Everything else is uppercased, '-', ' ' and '.' become '_', characters outside
// [A-Z0-9] are dropped and the stem is cut to eight characters. An empty
// result becomes LOG.CSV.
func Sanitize(raw string) (string, error) {
	if strings.ContainsAny(raw, rejected) {
		return "", errcode.New(errcode.InvalidName, "sanitize", "label contains a reserved character")
	}

	label := strings.TrimSpace(raw)
	if strings.HasPrefix(label, ".") {
		if strings.Trim(label, ".") != "" {
			return "", errcode.New(errcode.InvalidName, "sanitize", "label must not start with '.'")
		}
		return Fallback + Extension, nil
	}

	var stem strings.Builder
	for _, r := range label {
		if stem.Len() == MaxStem {
			break
		}
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			stem.WriteRune(r)
		case r == '-', r == ' ', r == '.':
			stem.WriteByte('_')
		}
	}

	if stem.Len() == 0 {
		return Fallback + Extension, nil
	}
	return stem.String() + Extension, nil
}

// Equal reports whether two stored names refer to the same file. The medium
// is case-insensitive.
func Equal(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Valid reports whether name is a plain entry name with no path component.
func Valid(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, rejected)
}
