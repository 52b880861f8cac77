package domain

import "errors"

// Identity is the verified set of claims attached to a request after token
// resolution. It is the only identity representation the rest of the service
// consumes; signature verification happens in the claims resolver.
type Identity struct {
	// SubjectID is the stable external subject identifier (the "oid"/"sub" claim).
	SubjectID string
	Name      string
	Email     string
	Roles     []string
	Scopes    []string
	// IsSuperadmin grants unconditional bypass of all domain-level checks.
	IsSuperadmin bool
}

// ErrInvalidToken is returned by a claims resolver when the presented token
// cannot be verified or carries no usable subject.
var ErrInvalidToken = errors.New("invalid token")

// CheckRolesAndScopes reports whether the identity's claims satisfy a required
// combination expressed as OR-of-AND groups: required = [[a,b],[c]] means
// "(has a AND b) OR (has c)". An empty requirement always passes. Both the
// role and the scope dimension must pass.
func CheckRolesAndScopes(userRoles, userScopes []string, requiredRoles, requiredScopes [][]string) bool {
	return satisfiesAny(userRoles, requiredRoles) && satisfiesAny(userScopes, requiredScopes)
}

func satisfiesAny(have []string, required [][]string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, v := range have {
		set[v] = struct{}{}
	}
	for _, group := range required {
		ok := true
		for _, want := range group {
			if _, found := set[want]; !found {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
