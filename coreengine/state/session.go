package state

import "github.com/google/uuid"

// NewSessionScope builds the reserved Custom("session:<uuid>") scope,
// validating that sessionID parses as a UUID v4 so the invariant that a
// session:<uuid> tag MUST parse back to a valid UUID v4 holds at
// construction time rather than only at the point some adapter happens to
// parse it back.
func NewSessionScope(sessionID string) (Scope, error) {
	parsed, err := uuid.Parse(sessionID)
	if err != nil {
		return Scope{}, NewValidationError("session scope id must be a UUID: " + err.Error())
	}
	if parsed.Version() != 4 {
		return Scope{}, NewValidationError("session scope id must be a UUID v4")
	}
	return Session(sessionID), nil
}

// NewSession allocates a fresh random session scope.
func NewSession() Scope {
	return Session(uuid.NewString())
}
