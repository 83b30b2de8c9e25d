package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// errorResponse writes the unified error envelope shared by the inference
// and admin surfaces.
func errorResponse(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{"error": gin.H{"message": message, "type": errType}})
}

// validationError writes a 422 carrying a combined message plus the
// field-level failures when the binding error exposes them.
func validationError(c *gin.Context, err error) {
	fields := make([]gin.H, 0, 4)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, gin.H{
				"field":   fe.Field(),
				"message": "failed on '" + fe.Tag() + "' validation",
			})
		}
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error": gin.H{
			"message": "Invalid request body: " + err.Error(),
			"type":    "validation_error",
			"detail":  fields,
		},
	})
}

// intQuery reads an integer query parameter, falling back when absent or
// malformed.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// int64Query reads a required integer query parameter. On failure it
// writes a 422 and returns false.
func int64Query(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, "validation_error",
			"Invalid or missing query parameter: "+name)
		return 0, false
	}
	return v, true
}

// pathID reads a numeric path parameter. On failure it writes a 422 and
// returns false.
func pathID(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, "validation_error",
			"Invalid path parameter: "+name)
		return 0, false
	}
	return v, true
}
