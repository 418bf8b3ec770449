package auth

import (
	"net/http"
	"strings"
)

// HeaderVerifier reads a federated identity asserted by a trusted reverse
// proxy (for example an OAuth proxy in front of the service). The proxy
// must strip these headers from client requests.
type HeaderVerifier struct {
	// EmailHeader carries the verified email. Empty disables federated sign-in.
	EmailHeader string
	// SubjectHeader carries the stable user id; defaults to the email.
	SubjectHeader string
	// NameHeader optionally carries a display name.
	NameHeader string
}

// Enabled reports whether federated sign-in is configured.
func (v HeaderVerifier) Enabled() bool {
	return v.EmailHeader != ""
}

// Verify extracts the identity from r. It fails with
// CodeOperationNotAllowed when federated sign-in is disabled or the proxy
// did not assert an identity.
func (v HeaderVerifier) Verify(r *http.Request) (FederatedIdentity, error) {
	if !v.Enabled() {
		return FederatedIdentity{}, providerErr(CodeOperationNotAllowed)
	}
	email := strings.TrimSpace(r.Header.Get(v.EmailHeader))
	if email == "" {
		return FederatedIdentity{}, providerErr(CodeOperationNotAllowed)
	}
	id := FederatedIdentity{Email: email, Subject: email}
	if v.SubjectHeader != "" {
		if sub := strings.TrimSpace(r.Header.Get(v.SubjectHeader)); sub != "" {
			id.Subject = sub
		}
	}
	if v.NameHeader != "" {
		id.DisplayName = strings.TrimSpace(r.Header.Get(v.NameHeader))
	}
	return id, nil
}
