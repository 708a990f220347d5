package api

import (
	"net/http"

	"github.com/google/uuid"
)

// userIDHeader carries the authenticated user's id, set by the upstream
// auth proxy. Authentication itself happens before requests reach this
// service.
const userIDHeader = "X-User-ID"

// callerID extracts the authenticated user from the request. Writes a 401
// and returns false when the header is missing or malformed.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing "+userIDHeader+" header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "malformed "+userIDHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}
