// Package access implements the role registry gating every privileged
// operation: a sole Owner (held post-bootstrap only by the delay authority),
// Guardians empowered to halt, and Operators reserved for future hooks.
package access

import (
	"sort"
	"sync"

	"coffer/internal/asset"
	"coffer/internal/logging"
)

// Role is a privilege class. Owner is the only role able to grant or revoke
// roles; Guardian can only trigger emergency halts; Operator carries no
// operations yet.
type Role uint8

const (
	RoleOwner Role = iota
	RoleGuardian
	RoleOperator
)

// String returns the canonical role name.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleGuardian:
		return "guardian"
	case RoleOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// ParseRole maps a role name to its Role value.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "owner":
		return RoleOwner, true
	case "guardian":
		return RoleGuardian, true
	case "operator":
		return RoleOperator, true
	default:
		return 0, false
	}
}

// Registry holds role memberships. All methods are safe for concurrent use;
// each call is atomic with respect to every other call.
type Registry struct {
	mu      sync.RWMutex
	members map[Role]map[asset.Address]struct{}
}

// NewRegistry creates a registry with initialOwner holding Owner. The
// bootstrap sequence later grants Owner to the delay authority and has the
// initial owner self-revoke.
func NewRegistry(initialOwner asset.Address) *Registry {
	r := &Registry{members: map[Role]map[asset.Address]struct{}{
		RoleOwner:    {},
		RoleGuardian: {},
		RoleOperator: {},
	}}
	if !initialOwner.IsZero() {
		r.members[RoleOwner][initialOwner] = struct{}{}
	}
	return r
}

// IsInRole reports whether addr currently holds role.
func (r *Registry) IsInRole(addr asset.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][addr]
	return ok
}

// RequireOwner is the explicit owner-membership check consulted at every
// privileged entry point. It is independent of any generic "administers this
// role" relation: a delegate role can never inherit the Owner capability
// through an admin chain, because no such chain is consulted.
func (r *Registry) RequireOwner(caller asset.Address, action string) error {
	if !r.IsInRole(caller, RoleOwner) {
		return &UnauthorizedError{Caller: caller, Required: RoleOwner, Action: action}
	}
	return nil
}

// RequireGuardian checks that caller holds Guardian.
func (r *Registry) RequireGuardian(caller asset.Address, action string) error {
	if !r.IsInRole(caller, RoleGuardian) {
		return &UnauthorizedError{Caller: caller, Required: RoleGuardian, Action: action}
	}
	return nil
}

// Grant adds target to role. Only an Owner may grant. Guardian and Operator
// targets must be non-null; a grant to the null address fails.
func (r *Registry) Grant(caller asset.Address, role Role, target asset.Address) error {
	if err := r.RequireOwner(caller, "grant "+role.String()); err != nil {
		return err
	}
	if (role == RoleGuardian || role == RoleOperator) && target.IsZero() {
		return ErrNullTarget
	}

	r.mu.Lock()
	r.members[role][target] = struct{}{}
	r.mu.Unlock()

	logging.Access("grant: role=%s target=%s by=%s", role, target, caller)
	return nil
}

// Revoke removes target from role. Only an Owner may revoke a third party.
//
// Exception: an actor may revoke its own Owner membership even though it would
// otherwise need to hold Owner (which it does, trivially). Critically, this
// path has no safeguard against removing the last remaining Owner. The
// bootstrap sequence depends on exactly this to let the temporary deployment
// authority permanently remove itself; a system whose delay authority was
// never granted Owner is left permanently ownerless.
//
// An Owner revoking a non-member is an idempotent no-op; a non-Owner
// "self-revoking" Owner it never held is rejected as unauthorized.
func (r *Registry) Revoke(caller asset.Address, role Role, target asset.Address) error {
	if role == RoleOwner && caller == target {
		return r.selfRevokeOwner(caller)
	}
	if err := r.RequireOwner(caller, "revoke "+role.String()); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.members[role], target)
	r.mu.Unlock()

	logging.Access("revoke: role=%s target=%s by=%s", role, target, caller)
	return nil
}

// selfRevokeOwner is the distinct self-revocation transition, kept separate
// from the generic permission check rather than folded into it. The actor
// must actually hold Owner; otherwise the call is an ordinary unauthorized
// revoke, not a no-op.
func (r *Registry) selfRevokeOwner(actor asset.Address) error {
	r.mu.Lock()
	if _, held := r.members[RoleOwner][actor]; !held {
		r.mu.Unlock()
		return &UnauthorizedError{Caller: actor, Required: RoleOwner, Action: "revoke owner"}
	}
	delete(r.members[RoleOwner], actor)
	remaining := len(r.members[RoleOwner])
	r.mu.Unlock()

	logging.Access("self-revoke: owner=%s remaining_owners=%d", actor, remaining)
	if remaining == 0 {
		logging.Get(logging.CategoryAccess).Warn("no owner remains; privileged operations are permanently unreachable")
	}
	return nil
}

// Members returns the addresses currently holding role, in no particular
// order.
func (r *Registry) Members(role Role) []asset.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]asset.Address, 0, len(r.members[role]))
	for a := range r.members[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Restore replaces a role's membership set, for rehydration from persistence.
func (r *Registry) Restore(role Role, addrs []asset.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[asset.Address]struct{}, len(addrs))
	for _, a := range addrs {
		m[a] = struct{}{}
	}
	r.members[role] = m
}
