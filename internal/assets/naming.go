// internal/assets/naming.go
package assets

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// maxHintLen caps the sanitized part of a generated name.
const maxHintLen = 120

// defaultHint is used when nothing usable survives sanitization.
const defaultHint = "asset"

// Ref is the generated name of a stored asset. The zero value means "no asset".
type Ref string

// IsZero reports whether the ref names no asset.
func (r Ref) IsZero() bool { return r == "" }

func (r Ref) String() string { return string(r) }

// MarshalJSON encodes an empty ref as null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON accepts a string or null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

// Value stores an empty ref as SQL NULL.
func (r Ref) Value() (driver.Value, error) {
	if r == "" {
		return nil, nil
	}
	return string(r), nil
}

// Scan reads a nullable text column.
func (r *Ref) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = ""
	case string:
		*r = Ref(v)
	case []byte:
		*r = Ref(v)
	default:
		return fmt.Errorf("assets: cannot scan %T into Ref", src)
	}
	return nil
}

// Namer generates asset names of the form "{unix-nanos}_{sanitized-hint}".
// The timestamp part is strictly increasing for the lifetime of the Namer, so
// two calls never produce the same name even with identical hints.
type Namer struct {
	last atomic.Int64
	now  func() time.Time
}

// NewNamer returns a Namer driven by the wall clock.
func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

// defaultNamer is shared by every store in the process so that stores pointing
// at the same namespace cannot hand out the same timestamp.
var defaultNamer = NewNamer()

// Next returns a fresh name for the given original filename hint.
func (n *Namer) Next(hint string) Ref {
	return Ref(strconv.FormatInt(n.tick(), 10) + "_" + Sanitize(hint))
}

func (n *Namer) tick() int64 {
	now := n.now().UnixNano()
	for {
		last := n.last.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Sanitize turns a client-supplied filename into a safe name component:
// whitespace and path separators become underscores, ".." sequences and
// control characters are removed, and the result is length-capped.
func Sanitize(hint string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsSpace(r):
			return '_'
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, hint)

	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	s = strings.Trim(s, ".")

	if len(s) > maxHintLen {
		s = truncate(s, maxHintLen)
	}
	if s == "" {
		return defaultHint
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}

// ValidRef reports whether ref could have been produced by a Namer. Stores
// reject anything else so that a ref can never address a path outside the
// store's namespace.
func ValidRef(ref Ref) bool {
	s := string(ref)
	if s == "" || len(s) > maxHintLen+32 {
		return false
	}
	if strings.ContainsAny(s, "/\\") || strings.Contains(s, "..") {
		return false
	}
	ts, rest, ok := strings.Cut(s, "_")
	if !ok || ts == "" || rest == "" {
		return false
	}
	for _, c := range ts {
		if c < '0' || c > '9' {
			return false
		}
	}
	for _, c := range rest {
		if unicode.IsControl(c) || unicode.IsSpace(c) {
			return false
		}
	}
	return true
}
