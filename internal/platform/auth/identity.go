package auth

import (
	"net/http"
	"strings"
)

// SessionHeader carries the client-generated anonymous session id.
// The value is an opaque token minted once per browser/device and persisted
// locally by the playback client; the server never validates it beyond
// non-emptiness.
const SessionHeader = "X-Session-Id"

// Identity names the viewer a progress operation acts for. UserID is the
// server-verified subject of a Bearer token; SessionID is the anonymous
// device token. Either may be empty, and the user id is authoritative
// whenever both are present.
type Identity struct {
	UserID    string
	SessionID string
}

// Empty reports whether the identity carries neither a user nor a session.
func (i Identity) Empty() bool {
	return i.UserID == "" && i.SessionID == ""
}

// Anonymous reports whether the identity has no verified user.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// IdentityFromRequest assembles the viewer identity from the verified user id
// (injected by RequireUser/OptionalUser) and the session header.
func IdentityFromRequest(r *http.Request) Identity {
	uid, _ := UserIDFromContext(r.Context())
	return Identity{
		UserID:    strings.TrimSpace(uid),
		SessionID: strings.TrimSpace(r.Header.Get(SessionHeader)),
	}
}
