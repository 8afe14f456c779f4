// Package scope resolves an authenticated caller's role and tenant identity
// into a data-visibility predicate and a cache-key namespace. Every read path
// consumes the same resolution so list, count and dashboard queries cannot
// drift apart, and cached reads are scoped exactly like live ones.
package scope

import "errors"

// Role is one of the closed set of caller roles.
type Role string

// Known roles. The legacy variants are kept for tokens issued by the previous
// deployment and resolve identically to their current counterparts.
const (
	RoleService     Role = "SERVICE"
	RoleAdmin       Role = "ADMIN"
	RoleLegacyAdmin Role = "LEGACY_ADMIN"
	RoleUser        Role = "USER"
	RoleLegacyUser  Role = "LEGACY_USER"
	RoleGuest       Role = "GUEST"
)

// DevelopmentHospital is the reserved development tenant hidden from the
// global service role.
const DevelopmentHospital = "HID-DEVELOPMENT"

// ErrUnknownRole is returned for an unrecognized or absent role. Resolution
// is deny-by-default: an unknown caller gets no visibility rather than
// unrestricted visibility.
var ErrUnknownRole = errors.New("unknown or missing role")

// Claims carries the identity attributes relevant to scoping.
type Claims struct {
	Role       Role
	HospitalID string
	WardID     string
}

// Kind describes the shape of a visibility predicate.
type Kind int

const (
	// KindWard restricts visibility to a single ward.
	KindWard Kind = iota
	// KindHospital restricts visibility to a single hospital.
	KindHospital
	// KindGlobal grants visibility to everything except the reserved
	// development tenant.
	KindGlobal
)

// Scope is a resolved visibility predicate plus its cache-key namespace.
type Scope struct {
	Kind Kind
	// Ward is set for KindWard.
	Ward string
	// Hospital is set for KindHospital. For KindGlobal it names the excluded
	// development tenant.
	Hospital string
}

// Resolve maps claims to a scope. Unknown roles are rejected.
func Resolve(c Claims) (Scope, error) {
	switch c.Role {
	case RoleUser, RoleLegacyUser, RoleGuest:
		return Scope{Kind: KindWard, Ward: c.WardID}, nil
	case RoleAdmin, RoleLegacyAdmin:
		return Scope{Kind: KindHospital, Hospital: c.HospitalID}, nil
	case RoleService:
		return Scope{Kind: KindGlobal, Hospital: DevelopmentHospital}, nil
	default:
		return Scope{}, ErrUnknownRole
	}
}

// CacheKeyPrefix is the namespace under which results visible to this scope
// may be cached. Scopes with different predicates never share a prefix, so a
// ward user can never be served an entry cached for another caller.
func (s Scope) CacheKeyPrefix() string {
	switch s.Kind {
	case KindWard:
		return "scope:ward:" + s.Ward
	case KindHospital:
		return "scope:hospital:" + s.Hospital
	default:
		return "scope:global"
	}
}

// Allows reports whether a record tagged with the given hospital and ward is
// visible to the scope. It is the in-memory counterpart of the SQL predicate
// built by the store and is applied to rows coming back from the cache.
func (s Scope) Allows(hospital, ward string) bool {
	switch s.Kind {
	case KindWard:
		return ward == s.Ward
	case KindHospital:
		return hospital == s.Hospital
	default:
		return hospital != DevelopmentHospital
	}
}
