package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Error codes surfaced to callers. Internal inconsistencies stay behind the
// generic codes; actionable detail goes in the optional message.
const (
	CodeValidation          = "validation_error"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidSignature    = "invalid_signature"
	CodeReceiptInvalid      = "receipt_invalid"
	CodeUserNotFound        = "user_not_found"
	CodeRateLimited         = "rate_limited"
	CodeStoreUnavailable    = "store_unavailable"
	CodeProviderUnavailable = "provider_unavailable"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorBody{Error: code, Message: message})
}

// ValidationError sends a 400 caller-fault response
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeValidation, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// RateLimited sends the admission rejection with a retry-after hint in both
// the body and the standard header
func RateLimited(c *gin.Context, retryAfterSeconds int) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       CodeRateLimited,
		"message":     "too many requests, retry after the current window",
		"retry_after": retryAfterSeconds,
	})
}

// Success sends a success JSON response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
