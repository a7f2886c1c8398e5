package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mangwale-chat/internal/model"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash"

	defaultSystemPrompt = "You are Mangwale's delivery assistant in Nashik. Help customers order food, " +
		"send parcels and track orders. Be friendly and concise. Reply in plain text without markdown."
)

type GeminiOptions struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// GeminiResponder answers free-form input with Gemini. Inputs the rule table
// recognises (menu buttons, login, cards) still go through the rules so the
// session steps stay deterministic; any Gemini failure degrades to the rule
// fallback.
type GeminiResponder struct {
	rules    RuleResponder
	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGeminiResponder(ctx context.Context, opts GeminiOptions) (*GeminiResponder, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelName := strings.TrimPrefix(opts.Model, "models/")
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	system := opts.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	temp := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
		Temperature:     &temp,
		MaxOutputTokens: int32(opts.MaxTokens),
	}

	return &GeminiResponder{
		generate: func(ctx context.Context, prompt string) (string, error) {
			result, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), cfg)
			if err != nil {
				return "", fmt.Errorf("Gemini SDK Error: %w", err)
			}
			return candidateText(result)
		},
	}, nil
}

func (g *GeminiResponder) Reply(ctx context.Context, session model.Session, history []model.StoredMessage, input string) (string, model.Session) {
	if content, next, ok := g.rules.match(session, input); ok {
		return content, next
	}

	text, err := g.generate(ctx, conversationPrompt(history, input))
	if err != nil {
		log.Printf("⚠️ gemini reply for %s failed: %v", session.ID, err)
		return fallbackReply(), session
	}
	session.CurrentStep = "conversation"
	return render(text, []model.OptionButton{{Label: "Menu", Value: "START"}}), session
}

// conversationPrompt flattens the transcript the same way for every turn; the
// last customer line is always input even when history does not end with it.
func conversationPrompt(history []model.StoredMessage, input string) string {
	var lines []string
	for _, msg := range history {
		role := "Customer"
		if msg.Role == model.RoleAssistant {
			role = "You"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	if n := len(history); n == 0 || history[n-1].Role != model.RoleUser || history[n-1].Content != input {
		lines = append(lines, "Customer: "+input)
	}
	return "Previous conversation:\n" + strings.Join(lines, "\n") + "\n\nPlease respond to the customer's last message:"
}

func candidateText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result from Gemini")
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in Gemini response")
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return "", fmt.Errorf("nil content in candidate")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini (finish reason %v)", candidate.FinishReason)
	}
	return text, nil
}
