package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError describes one failed field check.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidateRequest runs the struct validate tags and returns one entry per
// failing field, or nil when the request is valid.
func ValidateRequest(obj any) []ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "request", Message: "Invalid request data", Type: "invalid"}}
	}

	out := make([]ValidationError, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Type:    fe.Tag(),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "numeric":
		return "Must contain only digits"
	default:
		return "Invalid value"
	}
}

// RespondWithValidationError writes the 400 envelope with per-field details.
func RespondWithValidationError(c *gin.Context, details []ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status":  false,
		"message": "Invalid request data",
		"details": details,
	})
}

// RespondWithError writes the plain failure envelope.
func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"status":  false,
		"message": message,
	})
}
