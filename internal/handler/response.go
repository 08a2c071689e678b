package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Results *int        `json:"results,omitempty"`
	Message string      `json:"message,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

// NewListResponse carries the result count alongside the list
func NewListResponse(data interface{}, n int) *Response {
	return &Response{Success: true, Data: data, Results: &n}
}

func NewErrorResponse(message string) *Response {
	return &Response{Success: false, Message: message}
}

// Fail records err for the error middleware and stops the chain
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// BindError turns a gin binding failure into a Validation error naming the offending fields
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldMessage(fe))
		}
		return apperrors.Validation(strings.Join(fields, "; "), err)
	}
	return apperrors.Validation("Invalid request body.", err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// StatusOf maps err onto its HTTP status; foreign errors are 500
func StatusOf(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// MessageOf is the caller-facing text of err. Internal detail is only exposed when verbose.
func MessageOf(err error, verbose bool) string {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		if verbose {
			return err.Error()
		}
		return "internal server error"
	}
	if appErr.Kind == apperrors.KindInternal {
		if verbose && appErr.Err != nil {
			return appErr.Error()
		}
		return appErr.Message
	}
	return appErr.Message
}
