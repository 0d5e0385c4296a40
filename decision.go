package goGate

// DecisionKind tags the outcome of [Decide].
type DecisionKind uint8

const (
	// DenyUnauthenticated is the zero value: no session was present.
	DenyUnauthenticated DecisionKind = iota
	// DenyForbidden means a session exists but its role is not allowed.
	DenyForbidden
	// Permit lets the request through.
	Permit
)

func (k DecisionKind) String() string {
	switch k {
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	case Permit:
		return "permit"
	default:
		return "unknown"
	}
}

// Decision is produced fresh for every request and never persisted.
// Session is non-nil only when Kind is [Permit].
type Decision struct {
	Kind    DecisionKind
	Session *Session
}

// Permitted reports whether the request may proceed.
func (d Decision) Permitted() bool {
	return d.Kind == Permit && d.Session != nil
}

// Decide is the role policy. It is pure and total:
//
//   - nil session            -> DenyUnauthenticated
//   - allowed is empty       -> Permit
//   - session role in allowed -> Permit
//   - otherwise              -> DenyForbidden
func Decide(sess *Session, allowed RoleSet) Decision {
	if sess == nil {
		return Decision{Kind: DenyUnauthenticated}
	}
	if allowed.IsEmpty() || allowed.Contains(sess.Role) {
		return Decision{Kind: Permit, Session: sess}
	}
	return Decision{Kind: DenyForbidden}
}
