package handlers

// Stable error codes carried in ErrorResponse.Code. Codes are lowercase
// snake_case; the generic ones mirror HTTP status semantics, the rest name a
// business failure the status alone cannot convey.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeShareFailed        = "share_failed"
	ErrCodeAnswerFailed       = "answer_failed"
	ErrCodeUnknown            = "unknown_error"
)
