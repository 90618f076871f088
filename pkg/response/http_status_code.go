package response

// Error codes shared by the HTTP API and the websocket error frames
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE" // Frame could not be decoded or validated
	ErrCodeUnknownEvent   = "UNKNOWN_EVENT"   // Frame type not handled by the server
	ErrCodeForbidden      = "FORBIDDEN"       // Caller is not a participant of the room
	ErrCodeUnauthorized   = "UNAUTHORIZED"    // Missing or invalid credential
	ErrCodeNotFound       = "NOT_FOUND"       // Route or resource not found
	ErrCodeRateLimited    = "RATE_LIMITED"    // Too many requests in the window
	ErrCodeInternal       = "INTERNAL"        // Unexpected server failure
)

// message
var msg = map[string]string{
	ErrCodeInvalidMessage: "invalid message format",
	ErrCodeUnknownEvent:   "unknown event type",
	ErrCodeForbidden:      "not a participant of this room",
	ErrCodeUnauthorized:   "authentication required",
	ErrCodeNotFound:       "Route not found",
	ErrCodeRateLimited:    "Rate limit exceeded",
	ErrCodeInternal:       "Something went wrong",
}

// Msg returns the default human readable message for an error code
func Msg(code string) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return msg[ErrCodeInternal]
}
