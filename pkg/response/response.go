package response

import (
	"net/http"

	appErrors "github.com/charlesng35/safeguard/pkg/errors"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the payload written for failed requests. Error carries the
// human-readable message and Details the underlying failure, when known.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Success writes {"success": true} merged with the supplied top-level fields.
func Success(c *gin.Context, statusCode int, fields gin.H) {
	body := gin.H{"success": true}
	for key, value := range fields {
		if key == "success" {
			continue
		}
		body[key] = value
	}
	c.JSON(statusCode, body)
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details(),
	})
}
