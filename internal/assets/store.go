// Package assets stores binary catalog assets (cover images) outside the
// record store. Stores know nothing about catalog items: they hand out unique
// names on Store and forget about the payload's meaning.
//
// All stores are safe for concurrent use. Delete is idempotent so callers can
// retry cleanups freely.
package assets

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrEmptyPayload = errors.New("asset payload is empty")
	ErrInvalidRef   = errors.New("invalid asset ref")
)

// Info describes a stored asset.
type Info struct {
	Ref     Ref
	Size    int64
	ModTime time.Time
}

type options struct {
	logger zerolog.Logger
	namer  *Namer
}

// Option configures a store.
type Option func(*options)

// WithLogger sets the store's logger. Stores log nothing by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNamer overrides the process-wide name generator.
func WithNamer(n *Namer) Option {
	return func(o *options) { o.namer = n }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zerolog.Nop(),
		namer:  defaultNamer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
