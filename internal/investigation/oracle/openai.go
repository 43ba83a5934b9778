package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultPersona = "You are a senior financial-crime analyst performing due diligence on high-value transactions. You answer with a single JSON object and nothing else."

// OpenAIConfig configures the chat-completion oracle.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	// Persona is the system message. Empty uses a due-diligence analyst persona.
	Persona string
	// JSONMode asks the API for a JSON object response.
	JSONMode bool
}

// OpenAIOracle completes prompts with an OpenAI-compatible chat API.
type OpenAIOracle struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI builds the oracle. httpClient may be nil.
func NewOpenAI(cfg OpenAIConfig, httpClient *http.Client) *OpenAIOracle {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Persona == "" {
		cfg.Persona = defaultPersona
	}
	return &OpenAIOracle{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

// Complete implements Oracle.
func (o *OpenAIOracle) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.cfg.Persona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = o.cfg.MaxTokens
	}
	if o.cfg.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
