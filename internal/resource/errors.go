package resource

import (
	"fmt"
	"net/http"

	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
)

// Коды ошибок движка ресурсов.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Error — ошибка операции движка с HTTP-статусом.
// Единственный тип ошибки, который движок возвращает обработчикам.
type Error struct {
	Status  int
	Code    string
	Message string
	Details []schema.FieldError
	// Err — исходная причина (не передаётся клиенту).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest — 400, запрос не разобран.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

// Unprocessable — 422, запрос разобран, но данные некорректны.
func Unprocessable(message string, details ...schema.FieldError) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Code: CodeValidationError, Message: message, Details: details}
}

// NotFound — 404.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict — 409.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// Internal — 500; причина сохраняется для журнала.
func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternalError,
		Message: "внутренняя ошибка сервера",
		Err:     err,
	}
}
