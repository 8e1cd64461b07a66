package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// userIDFromContext returns the authenticated caller's id, zero when
// the auth middleware did not run.
func userIDFromContext(c *gin.Context) int64 {
	if val, ok := c.Get("userID"); ok {
		switch userID := val.(type) {
		case int:
			return int64(userID)
		case int64:
			return userID
		}
	}
	return 0
}

// auditUserID converts the caller's id into the optional form the
// audit envelope carries.
func auditUserID(c *gin.Context) *int64 {
	if userID := userIDFromContext(c); userID != 0 {
		value := userID
		return &value
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.ParseInt(header, 10, 64); err == nil {
			return &parsed
		}
	}

	return nil
}

// paramID parses a numeric path parameter, responding 400 itself on
// malformed input.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}
