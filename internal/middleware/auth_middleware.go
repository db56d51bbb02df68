package middleware

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/agentdesk/agentdesk-golang/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDMiddleware tags every request with an X-Request-ID so log lines
// from one request can be stitched together.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and loads the caller's user row
// so downstream handlers know the user ID, their company and their role.
func AuthMiddleware(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			c.Abort()
			return
		}
		tokenString := parts[1]

		// 2. --- Validate Token ---
		userID, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. --- Load the User's Company and Role ---
		var companyID int64
		var role, status string
		err = db.QueryRow("SELECT company_id, role, status FROM users WHERE id = ?", userID).
			Scan(&companyID, &role, &status)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User account not found"})
			c.Abort()
			return
		}

		if status != "active" {
			c.JSON(http.StatusForbidden, gin.H{"error": "User account is not active"})
			c.Abort()
			return
		}

		// 4. --- Stash Identity in the Context ---
		c.Set("userID", userID)
		c.Set("companyID", companyID)
		c.Set("userRole", role)

		c.Next()
	}
}

// AdminMiddleware restricts a route group to admin users. It must run
// after AuthMiddleware, which stores the role in the context.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("userRole")
		if !exists || role.(string) != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
