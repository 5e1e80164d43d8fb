package errutil

import (
	"errors"
	"net/http"
)

type CoreStatus string

const (
	StatusBadRequest           CoreStatus = "BAD_REQUEST"
	StatusValidationFailed     CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized         CoreStatus = "UNAUTHORIZED"
	StatusForbidden            CoreStatus = "FORBIDDEN"
	StatusNotFound             CoreStatus = "NOT_FOUND"
	StatusConflict             CoreStatus = "CONFLICT"
	StatusUnprocessableEntity  CoreStatus = "UNPROCESSABLE_ENTITY"
	StatusUnsupportedMediaType CoreStatus = "UNSUPPORTED_MEDIA_TYPE"
	StatusTooManyRequests      CoreStatus = "TOO_MANY_REQUESTS"
	StatusClientClosedRequest  CoreStatus = "CLIENT_CLOSED_REQUEST"
	StatusTimeout              CoreStatus = "TIMEOUT"
	StatusInternal             CoreStatus = "INTERNAL"
	StatusNotImplemented       CoreStatus = "NOT_IMPLEMENTED"
	StatusBadGateway           CoreStatus = "BAD_GATEWAY"

	// Domain statuses
	StatusInvalidState      CoreStatus = "INVALID_STATE"
	StatusDuplicateChapter  CoreStatus = "DUPLICATE_CHAPTER"
	StatusAlreadyOwned      CoreStatus = "ALREADY_OWNED"
	StatusAlreadyRedeemed   CoreStatus = "ALREADY_REDEEMED"
	StatusNotOwned          CoreStatus = "NOT_OWNED"
	StatusInsufficientFunds CoreStatus = "INSUFFICIENT_FUNDS"
	StatusExpired           CoreStatus = "EXPIRED"
	StatusUsageLimitReached CoreStatus = "USAGE_LIMIT_REACHED"
)

func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusValidationFailed, StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden, StatusNotOwned:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusInvalidState, StatusDuplicateChapter,
		StatusAlreadyOwned, StatusAlreadyRedeemed, StatusUsageLimitReached:
		return http.StatusConflict
	case StatusInsufficientFunds:
		return http.StatusPaymentRequired
	case StatusExpired:
		return http.StatusGone
	case StatusUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusClientClosedRequest:
		return 499
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusNotImplemented:
		return http.StatusNotImplemented
	case StatusBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the CoreStatus carried by err, or StatusInternal when err
// is not a BaseError.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusInternal
}

func Is(err error, status CoreStatus) bool {
	return err != nil && StatusOf(err) == status
}
