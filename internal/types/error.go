package types

import (
	"errors"
	"fmt"
)

// AdapterError classifies failures crossing the exchange boundary.
type AdapterError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// ErrorKind defines the specific type of adapter error.
type ErrorKind int

const (
	FetchError ErrorKind = iota
	ParseError
	WebsocketError
	RateLimitedError
)

func (k ErrorKind) String() string {
	switch k {
	case FetchError:
		return "fetch error"
	case ParseError:
		return "parse error"
	case WebsocketError:
		return "websocket error"
	case RateLimitedError:
		return "rate limited"
	default:
		return "unknown error"
	}
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func NewFetchError(message string, err error) *AdapterError {
	return &AdapterError{Kind: FetchError, Message: message, Err: err}
}

func NewParseError(message string, err error) *AdapterError {
	return &AdapterError{Kind: ParseError, Message: message, Err: err}
}

func NewWebsocketError(message string, err error) *AdapterError {
	return &AdapterError{Kind: WebsocketError, Message: message, Err: err}
}

func NewRateLimitedError(message string, err error) *AdapterError {
	return &AdapterError{Kind: RateLimitedError, Message: message, Err: err}
}

// IsKind reports whether err is an AdapterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == kind
}
