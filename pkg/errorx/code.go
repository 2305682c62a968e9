package errorx

import "net/http"

type Code int

var Unknown = Error{Code: 100000, Message: "Request failed"}

const (
	// Common codes
	BadRequest       Code = 100001
	BadResponse      Code = 100002
	PermissionDenied Code = 100003
	NotFound         Code = 100004
	Unauthenticated  Code = 100005
	AlreadyExists    Code = 100006
	Internal         Code = 100007
	Unavailable      Code = 100008
	NotImplemented   Code = 100009
	TooManyRequests  Code = 100010

	// Store codes
	StoreUnavailable Code = 200001

	// Settlement codes
	PayoutSendFailed   Code = 300001
	PayoutSendUnknown  Code = 300002
	InvariantViolation Code = 300003
)

// HTTPStatus maps a code to the status written by the router. Draw outcomes
// such as an already settled period are not errors and never reach here.
func (c Code) HTTPStatus() int {
	switch c {
	case BadRequest:
		return http.StatusBadRequest
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Unauthenticated:
		return http.StatusUnauthorized
	case AlreadyExists, InvariantViolation:
		return http.StatusConflict
	case Unavailable, StoreUnavailable:
		return http.StatusServiceUnavailable
	case NotImplemented:
		return http.StatusNotImplemented
	case TooManyRequests:
		return http.StatusTooManyRequests
	case PayoutSendFailed, PayoutSendUnknown, BadResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
