package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Service holds the Gemini client used to run company agents.
type Service struct {
	Client *genai.Client
}

// NewService initializes the Gemini client.
func NewService(ctx context.Context, apiKey string) (*Service, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Service{Client: client}, nil
}

// Close releases the underlying API client.
func (s *Service) Close() error {
	return s.Client.Close()
}

// Run sends one user message through the given agent model and returns the
// text of the response. The agent prompt is the per-company system
// instruction configured for the agent being executed.
func (s *Service) Run(ctx context.Context, agentPrompt, userMessage, modelName string) (string, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash" // Fallback default
	}
	model := s.Client.GenerativeModel(modelName)

	if agentPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(agentPrompt)},
		}
	}

	cs := model.StartChat()
	res, err := cs.SendMessage(ctx, genai.Text(userMessage))
	if err != nil {
		return "", fmt.Errorf("error sending message: %w", err)
	}

	// Flatten the text parts of the first candidate.
	var sb strings.Builder
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("model returned no text response")
	}
	return sb.String(), nil
}
