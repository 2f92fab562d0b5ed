package identity

import "net/http"

// HeaderUser is set by the authentication proxy in front of this
// service. It is trusted as-is; the proxy strips any client-supplied
// value before injecting its own.
const HeaderUser = "X-Forwarded-User"

// Resolver decides who the current user is for an inbound request.
type Resolver struct {
	defaultUser string
	allowed     map[string]struct{}
}

func NewResolver(defaultUser string, authorizedUsers []string) *Resolver {
	r := &Resolver{defaultUser: defaultUser}
	if len(authorizedUsers) > 0 {
		r.allowed = make(map[string]struct{}, len(authorizedUsers))
		for _, u := range authorizedUsers {
			r.allowed[u] = struct{}{}
		}
	}
	return r
}

// FromRequest returns the identity for the request: the proxy-injected
// header when present, otherwise the configured default, otherwise "".
// User-directed operations must refuse an empty identity.
func (r *Resolver) FromRequest(req *http.Request) string {
	if user := req.Header.Get(HeaderUser); user != "" {
		return user
	}
	return r.defaultUser
}

// Authorized reports whether user passes the allow-list. An empty
// allow-list admits everyone.
func (r *Resolver) Authorized(user string) bool {
	if r.allowed == nil {
		return true
	}
	_, ok := r.allowed[user]
	return ok
}
