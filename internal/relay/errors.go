package relay

import "errors"

// Registration errors. A rejected registration leaves the session unregistered
// so the next payload on that connection is treated as a new attempt.
var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidUsername   = errors.New("username must not be empty")
	ErrReservedUsername  = errors.New("username is reserved")
	ErrAlreadyRegistered = errors.New("session already registered")
)

// ErrMalformedDirective marks a payload that starts like a private directive
// but does not name a valid target. Such payloads are broadcast as plain chat.
var ErrMalformedDirective = errors.New("malformed private directive")

// Delivery errors are per recipient and never abort a broadcast.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendTimeout     = errors.New("send timed out")
)

// ErrPersistenceUnavailable is reported when a record could not be archived.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")
