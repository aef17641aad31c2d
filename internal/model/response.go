package model

// Response is the JSON envelope for everything the service answers outside the HTML page.
type Response struct {
	Data    any     `json:"data,omitempty"`
	Error   *string `json:"error,omitempty"`
	Message string  `json:"message"`
}

func ErrorResponse(errMsg, message string) Response {
	return Response{Error: &errMsg, Message: message}
}
