package utils

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"
