package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var setupOnce sync.Once

// SetupValidator configures gin's validator: JSON field names in errors and
// the decimal and decimal_positive tags for string amounts.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		if err := registerDecimalTags(v); err != nil {
			panic(err)
		}
	})
}

func registerDecimalTags(v *validator.Validate) error {
	if err := v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := decimal.NewFromString(fl.Field().String())
		return err == nil
	}); err != nil {
		return fmt.Errorf("register decimal validation: %w", err)
	}
	if err := v.RegisterValidation("decimal_positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	}); err != nil {
		return fmt.Errorf("register decimal_positive validation: %w", err)
	}
	return nil
}

// FormatValidationErrors formats binding errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   fieldPath(e),
				Message: getValidationMessage(e),
				Tag:     e.Tag(),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleBindError writes the response for a failed ShouldBind call: 400 with
// field details for rule violations, 400 INVALID_JSON for malformed bodies
// and 413 for bodies cut by BodyLimit.
func HandleBindError(c *gin.Context, err error) {
	requestID := GetRequestID(c)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
			dto.ErrCodeBodyTooLarge, "Request body exceeds maximum allowed size", requestID))
		return
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.AbortWithStatusJSON(http.StatusBadRequest, FormatValidationErrors(err, requestID))
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
		dto.ErrCodeInvalidJSON, "Request body is not valid JSON", requestID))
}

// fieldPath drops the top-level struct name from the namespace:
// PostBillRequest.lines[0].amount becomes lines[0].amount.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "required_if":
		return "This field is required when " + strings.Replace(e.Param(), " ", " is ", 1)
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " items"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "datetime":
		return "Must be a date in YYYY-MM-DD format"
	case "decimal":
		return "Must be a decimal number"
	case "decimal_positive":
		return "Must be a decimal number greater than zero"
	default:
		return "Invalid value"
	}
}
