package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/jsbench/internal/shared/id"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// maxRequestIDLength bounds ids accepted from clients
const maxRequestIDLength = 128

// RequestID propagates the caller's X-Request-ID or assigns a new one, and
// echoes it on the response
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "" when absent
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
