package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/charlesng35/safeguard/pkg/response"
	appValidator "github.com/charlesng35/safeguard/pkg/validator"
)

// validationMapper lets a request payload translate rule failures into the
// error clients expect for that endpoint.
type validationMapper interface {
	validationError(appValidator.ValidationErrors) error
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("Invalid JSON payload").WithInternal(err))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		var failures appValidator.ValidationErrors
		if mapper, ok := any(dest).(validationMapper); ok && errors.As(err, &failures) {
			response.Error(c, mapper.validationError(failures))
			return false
		}
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if len(ve) == 0 {
			return "invalid request payload"
		}

		if missing := ve.FieldsWithTag("required"); len(missing) == len(ve) {
			return "Missing required fields: " + strings.Join(missing, ", ")
		}

		messages := make([]string, 0, len(ve))
		for _, failure := range ve {
			switch failure.Tag {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", failure.Field))
			case "email":
				messages = append(messages, fmt.Sprintf("%s must be a valid email address", failure.Field))
			case "oneof":
				options := strings.Join(strings.Fields(failure.Param), ", ")
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", failure.Field, options))
			default:
				if failure.Param != "" {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", failure.Field, failure.Tag, failure.Param))
				} else {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s", failure.Field, failure.Tag))
				}
			}
		}
		return strings.Join(messages, "; ")
	}

	return "invalid request payload"
}
