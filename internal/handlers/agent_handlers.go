package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AgentChatInput defines the structure of the JSON request body.
type AgentChatInput struct {
	AgentID int64  `json:"agentId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// RunAgent is the handler for POST /v1/agent/chat
// It is the canonical "protected operation": the access gate runs first,
// and only an allowed company gets its agent executed.
func (h *Handlers) RunAgent(c *gin.Context) {
	// 1. Get User Context (set by AuthMiddleware)
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	companyID_raw, _ := c.Get("companyID")
	companyID := companyID_raw.(int64)

	// 2. --- THE ACCESS GATE ---
	// Every protected operation must call and honor this before doing
	// any work.
	decision := h.Gate.CheckAccess(c.Request.Context(), companyID)
	if !decision.Allowed {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": decision.Reason})
		return
	}

	// 3. Parse Input
	var input AgentChatInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 4. Load the Agent Configuration
	// Agents are scoped to the caller's company; asking for another
	// company's agent is a 404, not a 403, so agent IDs don't leak.
	var prompt, modelName string
	query := `SELECT prompt, model_name FROM agents WHERE id = ? AND company_id = ?`
	err := h.DB.QueryRow(query, input.AgentID, companyID).Scan(&prompt, &modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load agent"})
		return
	}

	// 5. Execute the Agent
	response, err := h.Agent.Run(c.Request.Context(), prompt, input.Message, modelName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Agent execution failed: " + err.Error()})
		return
	}

	// 6. Save to History
	// The user already has their answer, so a history write failure is
	// logged rather than surfaced.
	historyQuery := `
		INSERT INTO agent_chat_history (agent_id, user_id, user_message, agent_response)
		VALUES (?, ?, ?, ?)`
	if _, dbErr := h.DB.Exec(historyQuery, input.AgentID, userID, input.Message, response); dbErr != nil {
		log.Printf("WARNING: failed to save agent chat history: %v", dbErr)
	}

	// 7. Return the Answer
	c.JSON(http.StatusOK, gin.H{
		"response": response,
	})
}
