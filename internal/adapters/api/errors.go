package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport wraps failures where no HTTP response arrived.
var ErrTransport = errors.New("api transport failure")

// Error is a non-2xx response from the API.
type Error struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *Error) Error() string {
	if len(e.Body) > 0 {
		body := e.Body
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Sprintf("api %s %s: status %d: %s", e.Method, e.Path, e.Status, body)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Status)
}

// Kind classifies API failures.
type Kind uint8

const (
	KindNone Kind = iota
	KindTransport
	KindValidation
	KindAuth
	KindNotFound
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Classify maps an error returned by Client into the failure taxonomy.
// Errors that did not come from Client classify as KindServer.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrTransport) {
		return KindTransport
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return KindServer
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return KindAuth
	case apiErr.Status == http.StatusNotFound:
		return KindNotFound
	case apiErr.Status >= 400 && apiErr.Status < 500:
		return KindValidation
	}
	return KindServer
}

func IsAuth(err error) bool       { return Classify(err) == KindAuth }
func IsNotFound(err error) bool   { return Classify(err) == KindNotFound }
func IsValidation(err error) bool { return Classify(err) == KindValidation }
