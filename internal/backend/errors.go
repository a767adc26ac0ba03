package backend

import "errors"

// RejectionError is returned when the backend answered but refused the request
// (envelope success=false), e.g. a command sent while the gateway is offline.
// Rejections are never retried.
type RejectionError struct {
	Message    string
	StatusCode int
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return "backend rejected the request"
	}
	return e.Message
}

// asRejection reports whether err wraps a RejectionError, storing it in target.
func asRejection(err error, target **RejectionError) bool {
	return errors.As(err, target)
}
