package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// Order history pages default to a moderate window; MaxLimit caps how much of
// the listing one request can pull.
const (
	DefaultOffset = 0
	DefaultLimit  = 50
	MaxLimit      = 100
)

// ParsePagination reads the offset and limit query parameters used by the
// order listing endpoint. Out-of-range values are rejected with
// ErrInvalidInput rather than clamped, so callers get a 400 instead of a
// silently truncated page.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, err = strconv.Atoi(c.DefaultQuery("offset", strconv.Itoa(DefaultOffset)))
	if err != nil || offset < 0 {
		return 0, 0, apperrors.Wrap(apperrors.ErrInvalidInput,
			"offset must be a non-negative integer")
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 || limit > MaxLimit {
		return 0, 0, apperrors.Wrap(apperrors.ErrInvalidInput,
			"limit must be between 1 and 100")
	}

	return offset, limit, nil
}
