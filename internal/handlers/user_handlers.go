package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/agentdesk/agentdesk-golang/internal/auth"
	"github.com/agentdesk/agentdesk-golang/internal/models"
	"github.com/gin-gonic/gin"
)

// LoginInput holds the credentials from the login request. It is separate
// from models.User so we only ever bind the two fields we expect.
type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/login
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Look Up the User ---
	var user models.User
	query := `
		SELECT id, company_id, role, status, email, password_hash, full_name
		FROM users
		WHERE email = ?`

	err := h.DB.QueryRow(query, input.Email).Scan(
		&user.ID,
		&user.CompanyID,
		&user.Role,
		&user.Status,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Same message as a wrong password, so the endpoint
			// cannot be used to probe for registered emails.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	// 3. --- Verify the Password ---
	password := models.Password{Hash: user.PasswordHash}
	matches, err := password.Matches(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify password"})
		return
	}
	if !matches {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	// 4. --- Issue the Token ---
	token, err := auth.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":        user.ID,
			"companyId": user.CompanyID,
			"fullName":  user.FullName,
			"role":      user.Role,
		},
	})
}
