package utils

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes applies when no positive limit is configured
const DefaultMaxBodyBytes int64 = 32 << 20

// ReadBody reads the request body up to limit bytes
func ReadBody(c *gin.Context, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
}

// SendBodyReadError replies 413 when ReadBody hit its limit and 400 otherwise
func SendBodyReadError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		SendBodyTooLargeError(c, maxErr.Limit)
		return
	}
	SendBadRequestError(c, "Failed to read request body", err.Error())
}
