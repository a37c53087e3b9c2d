// Package tool describes what the execution engine runs: an immutable
// Invocation (a kind plus its parameters), the Result it produces, and the
// Registry that maps kinds onto Tool implementations.
package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jackzampolin/toolrun/internal/toolerr"
)

// ErrUnknownKind is returned when a kind tag is not part of the closed set.
var ErrUnknownKind = errors.New("unknown tool kind")

// Invocation is an immutable request to run one tool. The zero value is not
// usable; build invocations with New or Parse.
type Invocation struct {
	params      Params
	fingerprint string
}

// New builds an Invocation from p. The parameters are copied, so later changes
// to maps or slices held by the caller do not leak into the invocation.
func New(p Params) Invocation {
	if p == nil {
		return Invocation{}
	}
	p = p.clone()
	if ld, ok := p.(ListDirectory); ok && ld.Path == "" {
		ld.Path = "."
		p = ld
	}
	return Invocation{params: p, fingerprint: fingerprint(p)}
}

// Kind returns the invocation's kind tag, or "" for the zero Invocation.
func (i Invocation) Kind() Kind {
	if i.params == nil {
		return ""
	}
	return i.params.Kind()
}

// Params returns a copy of the invocation parameters. Type-switch on the
// concrete value types (FileRead, HTTPRequest, ...) to read them.
func (i Invocation) Params() Params {
	if i.params == nil {
		return nil
	}
	return i.params.clone()
}

// Fingerprint is the cache key: the kind followed by a SHA-256 digest of the
// canonical JSON encoding of the parameters.
func (i Invocation) Fingerprint() string {
	return i.fingerprint
}

// Cacheable reports whether results of this invocation may be served from
// the result cache.
func (i Invocation) Cacheable() bool {
	return i.params != nil && i.params.cacheable()
}

// Invalidates returns the invocations whose cached results become stale once
// this invocation succeeds.
func (i Invocation) Invalidates() []Invocation {
	switch p := i.params.(type) {
	case FileWrite:
		return []Invocation{
			New(FileRead{Path: p.Path}),
			New(ListDirectory{Path: filepath.Dir(p.Path)}),
		}
	}
	return nil
}

// WithPath returns a copy of the invocation with its path parameter replaced.
// ok is false for kinds that have no path parameter.
func (i Invocation) WithPath(path string) (inv Invocation, ok bool) {
	switch p := i.params.(type) {
	case FileRead:
		p.Path = path
		return New(p), true
	case FileWrite:
		p.Path = path
		return New(p), true
	case ListDirectory:
		p.Path = path
		return New(p), true
	}
	return i, false
}

func (i Invocation) String() string {
	if i.params == nil {
		return "<empty invocation>"
	}
	return fmt.Sprintf("%s(%s)", i.Kind(), shortFingerprint(i.fingerprint))
}

type envelope struct {
	Kind   Kind            `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// MarshalJSON encodes the invocation as {"kind": ..., "params": {...}}.
func (i Invocation) MarshalJSON() ([]byte, error) {
	if i.params == nil {
		return nil, fmt.Errorf("marshal invocation: %w", ErrUnknownKind)
	}
	raw, err := json.Marshal(i.params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: i.Kind(), Params: raw})
}

// UnmarshalJSON decodes the envelope produced by MarshalJSON.
func (i *Invocation) UnmarshalJSON(data []byte) error {
	inv, err := Parse(data)
	if err != nil {
		return err
	}
	*i = inv
	return nil
}

// Parse decodes an invocation envelope.
func Parse(data []byte) (Invocation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Invocation{}, toolerr.NewParse(string(data), "invalid invocation envelope", err)
	}
	return ParseParams(env.Kind, env.Params)
}

// ParseParams decodes raw parameters for kind.
func ParseParams(kind Kind, raw json.RawMessage) (Invocation, error) {
	ctor, ok := newParams[kind]
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	p := ctor()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return Invocation{}, toolerr.NewParse(string(raw), fmt.Sprintf("invalid %s parameters", kind), err)
		}
	}
	return New(p), nil
}

func fingerprint(p Params) string {
	raw, err := json.Marshal(p)
	if err != nil {
		raw = fmt.Appendf(nil, "%#v", p)
	}
	sum := sha256.Sum256(raw)
	return string(p.Kind()) + ":" + hex.EncodeToString(sum[:])
}

func shortFingerprint(fp string) string {
	for idx := 0; idx < len(fp); idx++ {
		if fp[idx] == ':' && len(fp) > idx+13 {
			return fp[idx+1 : idx+13]
		}
	}
	return fp
}
