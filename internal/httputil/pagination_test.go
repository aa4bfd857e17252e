package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/httputil"
)

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		url            string
		expectedOffset int
		expectedLimit  int
		expectError    bool
	}{
		{
			name:           "default page window",
			url:            "/",
			expectedOffset: httputil.DefaultOffset,
			expectedLimit:  httputil.DefaultLimit,
		},
		{
			name:           "custom offset and limit",
			url:            "/?offset=10&limit=20",
			expectedOffset: 10,
			expectedLimit:  20,
		},
		{
			name:           "limit at the cap",
			url:            "/?limit=100",
			expectedOffset: 0,
			expectedLimit:  httputil.MaxLimit,
		},
		{
			name:        "negative offset",
			url:         "/?offset=-1",
			expectError: true,
		},
		{
			name:        "offset not an integer",
			url:         "/?offset=abc",
			expectError: true,
		},
		{
			name:        "limit zero",
			url:         "/?limit=0",
			expectError: true,
		},
		{
			name:        "limit over the cap",
			url:         "/?limit=101",
			expectError: true,
		},
		{
			name:        "limit not an integer",
			url:         "/?limit=xyz",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
			c.Request = req

			offset, limit, err := httputil.ParsePagination(c)

			if tt.expectError {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				assert.Zero(t, offset)
				assert.Zero(t, limit)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.expectedOffset, offset)
			assert.Equal(t, tt.expectedLimit, limit)
		})
	}
}
