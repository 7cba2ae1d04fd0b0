package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cityinfo.org/internal/auth"
)

// authenticate exchanges a credential for a bearer token. The response body is
// the token as a bare JSON string.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credential
	if err := decodeJSON(r, &cred); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	token, err := a.issuer.Issue(r.Context(), cred)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			a.audit(r.Context(), "auth.token.rejected", map[string]any{
				"user_name": strings.TrimSpace(cred.UserName),
			})
			unauthorized(w, r, "invalid credentials")
			return
		}
		a.handleStoreError(w, r, err)
		return
	}

	a.audit(r.Context(), "auth.token.issued", map[string]any{
		"user_name":  token.Identity.UserName,
		"tenant":     token.Identity.Tenant,
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, token.Raw)
}
