package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexuslabs/nexusmem/pkg/decay"
	"github.com/nexuslabs/nexusmem/pkg/retrieval"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// ValidationError reports a single invalid request field. Handlers return it
// directly for malformed or out-of-range input (spec.md §7's ValidationError
// kind); httpError maps it to 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// httpError type-switches an internal error into the status codes §7
// documents. Anything unrecognized is logged with context and surfaced as
// an opaque 500 — internal detail never leaks to the caller.
func httpError(c *gin.Context, err error) {
	var validErr *ValidationError
	switch {
	case errors.As(err, &validErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validErr.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, retrieval.ErrFactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, retrieval.ErrUnknownRelationship):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "storage conflict"})
	case errors.Is(err, decay.ErrNotImplemented):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrPoolUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		slog.Error("Unhandled API error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
