package auth

import "strings"

// Class is the access policy of a request path.
type Class int

const (
	Public Class = iota
	// AuthOnly paths are for principals who are not signed in yet.
	AuthOnly
	// Protected paths require a valid session.
	Protected
)

func (c Class) String() string {
	switch c {
	case AuthOnly:
		return "auth_only"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

const (
	APIPrefix = "/api/v1"
	// HomePath is where signed-in principals are sent from AuthOnly paths.
	HomePath = APIPrefix + "/notes"
)

// protectedPrefixes match the path itself and anything below it.
var protectedPrefixes = []string{
	APIPrefix + "/notes",
	APIPrefix + "/session",
	APIPrefix + "/auth/logout",
}

// authOnlyPaths match exactly.
var authOnlyPaths = map[string]struct{}{
	APIPrefix + "/auth/login":    {},
	APIPrefix + "/auth/register": {},
}

// Classify maps a request path to its policy. It is a pure function of the path.
func Classify(path string) Class {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for _, prefix := range protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return Protected
		}
	}
	if _, ok := authOnlyPaths[path]; ok {
		return AuthOnly
	}
	return Public
}
