package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/store"
)

// fail writes the response for err. Unknown errors are logged and returned
// as an opaque 500.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "code": "validation_error", "details": verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": publicMessage(err, "not found"), "code": "not_found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": publicMessage(err, "conflict"), "code": "conflict"})
	case errors.Is(err, store.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid device credentials", "code": "authentication_failed"})
	default:
		s.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal_error"})
	}
}

func publicMessage(err error, fallback string) string {
	var serr *store.Error
	if errors.As(err, &serr) {
		return serr.Error()
	}
	return fallback
}

// bindJSON decodes the request body into obj, writing a 400 on failure.
func (s *Server) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		s.fail(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return store.Invalid(field, "must be of type "+typeErr.Type.String())
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return store.Invalid("body", "request body must be a valid JSON object")
	}
	if verr := store.FromValidator(err); verr != err {
		return verr
	}
	return store.Invalid("body", "request body could not be decoded")
}
