package constant

const (
	ERR_VALIDATION_CODE                 = "VALIDATION_ERROR"
	ERR_INVALID_REQUEST_BODY_ERROR_CODE = "INVALID_REQUEST_BODY_ERROR"
	ERR_INTERNAL_SERVER_ERROR_CODE      = "INTERNAL_SERVER_ERROR"
	ERR_INTERNAL_SERVER_ERROR_MESSAGE   = "Something went wrong. If the problem persists, please contact support"
	ERR_INVALID_REQUEST_BODY_MESSAGE    = "The request is invalid or malformed"
	ERR_NOT_FOUND_ERROR                 = "NOT_FOUND_ERROR"
	ERR_UNAUTHORIZED_ERROR              = "UNAUTHORIZED_ERROR"

	// Invite redemption error kinds. Part of the public API contract: the
	// signup form keys its messages off the code field.
	ERR_INVITE_NOT_FOUND_CODE     = "INVITE_NOT_FOUND"
	ERR_INVITE_EXPIRED_CODE       = "INVITE_EXPIRED"
	ERR_INVITE_EXHAUSTED_CODE     = "INVITE_EXHAUSTED"
	ERR_INVALID_DURATION_CODE     = "INVALID_DURATION"
	ERR_CONCURRENCY_CONFLICT_CODE = "CONCURRENCY_CONFLICT"
)
