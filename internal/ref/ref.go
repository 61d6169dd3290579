// Package ref defines the canonical identities of recipes and package
// binaries.
//
// A Reference names a recipe instance: name/version@user/channel, with an
// optional recipe revision after '#'. A PackageReference extends a
// Reference with the package id of a concrete binary and, optionally,
// the package revision after a second '#'.
package ref

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern constrains the name, user and channel fields. Versions are
// looser because range expressions like "[>=1.0 <2.0]" travel inside the
// version slot until resolution rewrites them.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.+-]{0,100}$`)

// Reference identifies a recipe instance.
type Reference struct {
	Name     string
	Version  string
	User     string
	Channel  string
	Revision string
}

// Parse parses "name/version", "name/version@user/channel" or either
// form followed by "#revision".
func Parse(s string) (Reference, error) {
	var r Reference
	rest := s
	if idx := strings.Index(rest, "#"); idx >= 0 {
		r.Revision = rest[idx+1:]
		rest = rest[:idx]
		if r.Revision == "" {
			return Reference{}, fmt.Errorf("invalid reference %q: empty revision", s)
		}
	}
	if idx := strings.Index(rest, "@"); idx >= 0 {
		userChannel := rest[idx+1:]
		rest = rest[:idx]
		uc := strings.SplitN(userChannel, "/", 2)
		if len(uc) != 2 || uc[0] == "" || uc[1] == "" {
			return Reference{}, fmt.Errorf("invalid reference %q: expected user/channel after '@'", s)
		}
		r.User, r.Channel = uc[0], uc[1]
	}
	nv := strings.SplitN(rest, "/", 2)
	if len(nv) != 2 || nv[0] == "" || nv[1] == "" {
		return Reference{}, fmt.Errorf("invalid reference %q: expected name/version", s)
	}
	r.Name, r.Version = nv[0], nv[1]
	if !namePattern.MatchString(r.Name) {
		return Reference{}, fmt.Errorf("invalid reference %q: bad package name %q", s, r.Name)
	}
	return r, nil
}

// MustParse is Parse for statically known references; it panics on error.
func MustParse(s string) Reference {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String renders the reference in its canonical form.
func (r Reference) String() string {
	if r.Name == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('/')
	b.WriteString(r.Version)
	if r.User != "" {
		b.WriteByte('@')
		b.WriteString(r.User)
		b.WriteByte('/')
		b.WriteString(r.Channel)
	}
	if r.Revision != "" {
		b.WriteByte('#')
		b.WriteString(r.Revision)
	}
	return b.String()
}

// IsZero reports whether the reference is empty. Root nodes whose
// recipe has no name carry zero references.
func (r Reference) IsZero() bool {
	return r.Name == ""
}

// ClearRev returns a copy of the reference without its revision.
func (r Reference) ClearRev() Reference {
	r.Revision = ""
	return r
}

// Equal reports field-by-field equality, revision included.
func (r Reference) Equal(o Reference) bool {
	return r == o
}

// EqualIgnoreRev reports reference equality after clearing revisions on
// both sides. This is the equality the graph uses for conflict checks.
func (r Reference) EqualIgnoreRev(o Reference) bool {
	return r.ClearRev() == o.ClearRev()
}

// PackageReference identifies a concrete package binary: a recipe
// reference plus the package id, and optionally the package revision.
type PackageReference struct {
	Ref       Reference
	PackageID string
	Revision  string // package revision (prev)
}

// NewPackageReference builds a pref from a recipe reference and a
// package id.
func NewPackageReference(r Reference, packageID string) PackageReference {
	return PackageReference{Ref: r, PackageID: packageID}
}

// ParsePackageReference parses "ref:package_id" with optional
// "#prev" after the package id.
func ParsePackageReference(s string) (PackageReference, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return PackageReference{}, fmt.Errorf("invalid package reference %q: missing ':package_id'", s)
	}
	r, err := Parse(s[:idx])
	if err != nil {
		return PackageReference{}, err
	}
	p := PackageReference{Ref: r, PackageID: s[idx+1:]}
	if hash := strings.Index(p.PackageID, "#"); hash >= 0 {
		p.Revision = p.PackageID[hash+1:]
		p.PackageID = p.PackageID[:hash]
	}
	if p.PackageID == "" {
		return PackageReference{}, fmt.Errorf("invalid package reference %q: empty package id", s)
	}
	return p, nil
}

// String renders "ref:package_id" plus "#prev" when present. The recipe
// revision stays inside the embedded reference.
func (p PackageReference) String() string {
	s := p.Ref.String() + ":" + p.PackageID
	if p.Revision != "" {
		s += "#" + p.Revision
	}
	return s
}

// ClearRevs drops both the recipe revision and the package revision.
func (p PackageReference) ClearRevs() PackageReference {
	p.Ref = p.Ref.ClearRev()
	p.Revision = ""
	return p
}
