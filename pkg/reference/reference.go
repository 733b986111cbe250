// Kunhua Huang 2026

package reference

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver"
)

// Mode is the invocation mode of a proxy.
type Mode int

const (
	ModeTwoWay Mode = iota
	ModeOneWay
	ModeBatchOneWay
	ModeDatagram
	ModeBatchDatagram
)

func (m Mode) String() string {
	switch m {
	case ModeTwoWay:
		return "twoway"
	case ModeOneWay:
		return "oneway"
	case ModeBatchOneWay:
		return "batch-oneway"
	case ModeDatagram:
		return "datagram"
	case ModeBatchDatagram:
		return "batch-datagram"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode maps a config name to a Mode.
func ParseMode(name string) (Mode, error) {
	for _, m := range []Mode{ModeTwoWay, ModeOneWay, ModeBatchOneWay, ModeDatagram, ModeBatchDatagram} {
		if m.String() == name {
			return m, nil
		}
	}
	if name == "" {
		return ModeTwoWay, nil
	}
	return ModeTwoWay, fmt.Errorf("unknown invocation mode %q", name)
}

func (m Mode) IsBatch() bool {
	return m == ModeBatchOneWay || m == ModeBatchDatagram
}

// Reference describes the target of a proxy. A Reference is never modified
// after New returns; the With* methods return a new Reference.
type Reference struct {
	identity  string
	facet     string
	mode      Mode
	service   string
	endpoints []string
	compress  *bool
	timeout   time.Duration
	version   string
	accepts   semver.Range
}

type Option func(*Reference)

func WithMode(mode Mode) Option {
	return func(r *Reference) {
		r.mode = mode
	}
}

func WithFacet(facet string) Option {
	return func(r *Reference) {
		r.facet = facet
	}
}

// WithService names the locator entry used when no fixed endpoint is set.
func WithService(service string) Option {
	return func(r *Reference) {
		r.service = service
	}
}

func WithEndpoints(endpoints ...string) Option {
	return func(r *Reference) {
		r.endpoints = append([]string(nil), endpoints...)
	}
}

// WithCompress overrides the client-wide compression setting.
func WithCompress(compress bool) Option {
	return func(r *Reference) {
		c := compress
		r.compress = &c
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Reference) {
		r.timeout = timeout
	}
}

// WithVersion restricts locator lookups to instances whose version
// satisfies constraint, e.g. ">=1.2.0 <2.0.0".
func WithVersion(constraint string) Option {
	return func(r *Reference) {
		r.version = constraint
	}
}

func New(identity string, opts ...Option) (*Reference, error) {
	if identity == "" {
		return nil, fmt.Errorf("reference: empty identity")
	}

	r := &Reference{
		identity: identity,
		mode:     ModeTwoWay,
	}
	for _, o := range opts {
		o(r)
	}

	if r.mode < ModeTwoWay || r.mode > ModeBatchDatagram {
		return nil, fmt.Errorf("reference: invalid mode %d", int(r.mode))
	}
	if len(r.endpoints) == 0 && r.service == "" {
		return nil, fmt.Errorf("reference %s: needs endpoints or a service name", identity)
	}
	if r.version != "" {
		accepts, err := semver.ParseRange(r.version)
		if err != nil {
			return nil, fmt.Errorf("reference %s: version constraint %q: %w", identity, r.version, err)
		}
		r.accepts = accepts
	}
	return r, nil
}

// Derive returns a copy of r with opts applied on top.
func (r *Reference) Derive(opts ...Option) (*Reference, error) {
	all := []Option{
		WithMode(r.mode),
		WithFacet(r.facet),
		WithService(r.service),
		WithEndpoints(r.endpoints...),
		WithTimeout(r.timeout),
		WithVersion(r.version),
	}
	if r.compress != nil {
		all = append(all, WithCompress(*r.compress))
	}
	return New(r.identity, append(all, opts...)...)
}

func (r *Reference) Identity() string { return r.identity }
func (r *Reference) Facet() string    { return r.facet }
func (r *Reference) Mode() Mode       { return r.mode }
func (r *Reference) Service() string  { return r.service }

func (r *Reference) Timeout() time.Duration { return r.timeout }
func (r *Reference) Version() string        { return r.version }

// AcceptsVersion reports whether an instance advertising version may serve
// this reference. Without a constraint every instance is accepted; with one,
// instances that advertise no parseable version are rejected.
func (r *Reference) AcceptsVersion(version string) bool {
	if r.accepts == nil {
		return true
	}
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return false
	}
	return r.accepts(v)
}

// Endpoints returns a copy of the fixed endpoints.
func (r *Reference) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Compress reports the compression override, if the reference carries one.
func (r *Reference) Compress() (compress bool, ok bool) {
	if r.compress == nil {
		return false, false
	}
	return *r.compress, true
}

func (r *Reference) IsTwoWay() bool { return r.mode == ModeTwoWay }
func (r *Reference) IsBatch() bool  { return r.mode.IsBatch() }

func (r *Reference) String() string {
	var b strings.Builder
	b.WriteString(r.identity)
	if r.facet != "" {
		fmt.Fprintf(&b, " -f %s", r.facet)
	}
	fmt.Fprintf(&b, " -m %s", r.mode)
	if len(r.endpoints) > 0 {
		fmt.Fprintf(&b, ":%s", strings.Join(r.endpoints, ":"))
	} else {
		fmt.Fprintf(&b, " @ %s", r.service)
	}
	return b.String()
}
