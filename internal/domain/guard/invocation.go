package guard

import (
	"time"

	"github.com/google/uuid"

	"github.com/toolwarden/toolwarden/internal/domain/audit"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// Invocation is one privileged operation request moving through the
// chain. Stages read and annotate it in place: authentication fills
// User, validation rewrites sanitized detail values.
type Invocation struct {
	// RequestID correlates log lines and the audit entry for this request.
	RequestID string

	// Credentials is the raw material presented by the caller. Consumed
	// by the authentication stage and never logged.
	Credentials auth.Credentials

	// User is the verified identity. Nil until authentication succeeds,
	// unless the caller resolved a session beforehand.
	User *auth.User

	// Action is the operation verb (read, write, delete, execute).
	Action string

	// Resource is the operation's resource category.
	Resource string

	// Details carries operation-specific parameters. String values under
	// the command, path, and process_name keys are sanitized and
	// validated in place.
	Details map[string]any

	// ClientIP and UserAgent describe the transport peer, when known.
	ClientIP  string
	UserAgent string

	// Timestamp is when the invocation was constructed (UTC).
	Timestamp time.Time
}

// NewInvocation builds an invocation with a fresh request ID.
func NewInvocation(action, resource string, details map[string]any) *Invocation {
	if details == nil {
		details = make(map[string]any)
	}
	return &Invocation{
		RequestID: uuid.NewString(),
		Action:    action,
		Resource:  resource,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// UserID returns the acting user's ID, or the anonymous fallback when
// no identity is attached.
func (inv *Invocation) UserID() string {
	if inv.User != nil {
		return inv.User.ID
	}
	return audit.AnonymousUserID
}

// Operation converts the invocation to its authorization-facing form.
func (inv *Invocation) Operation() policy.Operation {
	return policy.Operation{
		Action:   inv.Action,
		Resource: inv.Resource,
		Details:  inv.Details,
	}
}
