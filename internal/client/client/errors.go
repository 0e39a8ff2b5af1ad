package client

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSessionClosed = errors.New("session closed")
	ErrProtocol      = errors.New("protocol violation")
	ErrEmptyResult   = errors.New("empty result")
)

// authErrorURIs are the router error URIs that mean the credentials or the
// principal were rejected.
var authErrorURIs = map[string]struct{}{
	"wamp.error.not_authorized":        {},
	"wamp.error.authentication_failed": {},
	"wamp.error.authorization_failed":  {},
	"wamp.error.no_such_principal":     {},
	"wamp.error.no_such_role":          {},
	"wamp.error.not_authenticated":     {},
}

// RemoteError is an ERROR reply to a call, or the reason of an ABORT while
// joining.
type RemoteError struct {
	URI    string
	Args   []any
	Kwargs map[string]any
}

func (e *RemoteError) Error() string {
	if len(e.Args) > 0 {
		return fmt.Sprintf("%s: %v", e.URI, e.Args[0])
	}
	if msg, ok := e.Kwargs["message"]; ok {
		return fmt.Sprintf("%s: %v", e.URI, msg)
	}
	return e.URI
}

// Is makes authentication and authorization rejections match ErrUnauthorized.
func (e *RemoteError) Is(target error) bool {
	if target != ErrUnauthorized {
		return false
	}
	_, ok := authErrorURIs[e.URI]
	return ok
}
