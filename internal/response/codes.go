package response

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrInvalidTransition  ErrCode = "INVALID_TRANSITION"
	ErrClassFull          ErrCode = "CLASS_FULL"
	ErrSchedulingConflict ErrCode = "SCHEDULING_CONFLICT"
	ErrClassHasBookings   ErrCode = "CLASS_HAS_BOOKINGS"

	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	ErrInternal    ErrCode = "INTERNAL_ERROR"
	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns the default human-readable message for a code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrForbidden:
		return "You are not allowed to perform this action."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrInvalidTransition:
		return "The requested state change is not allowed."
	case ErrClassFull:
		return "The class has no free seats."
	case ErrSchedulingConflict:
		return "The tutor already has a booking in this time window."
	case ErrClassHasBookings:
		return "The class has booked seats; cancel it instead."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "Internal server error."
	case ErrUnavailable:
		return "A dependency is unavailable."
	default:
		return "Unexpected error."
	}
}
