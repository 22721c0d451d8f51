package engine

import "fmt"

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
	}
}

func UnknownResourceError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_RESOURCE",
		Status:  404,
		Message: fmt.Sprintf("Unknown resource: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func InvalidSortError(raw string) *AppError {
	return &AppError{
		Code:    "INVALID_SORT",
		Status:  400,
		Message: fmt.Sprintf("Invalid sort expression: %q (expected +field or -field)", raw),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Status:  401,
		Message: msg,
	}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Status:  403,
		Message: msg,
	}
}

func InvalidPayloadError() *AppError {
	return &AppError{
		Code:    "INVALID_PAYLOAD",
		Status:  400,
		Message: "Request body must be a JSON object",
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Status:  409,
		Message: msg,
	}
}

func MethodNotAllowedError(msg string) *AppError {
	return &AppError{
		Code:    "METHOD_NOT_ALLOWED",
		Status:  405,
		Message: msg,
	}
}

func InternalError() *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Status:  500,
		Message: "Internal server error",
	}
}
