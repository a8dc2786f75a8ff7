package standin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You play a cooperative word association game. Given two words, answer with " +
	"one simple word that links them in an obvious or clever way. Your partner sees the same " +
	"two words and wins with you only if you both pick the same word."

// OpenAIConfig configures the chat completion call.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// OpenAIProvider asks an OpenAI-compatible chat model for a connecting word.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewOpenAIProvider(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16
	}
	return &OpenAIProvider{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (p *OpenAIProvider) Propose(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(prompt)),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(p.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userPrompt(p Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply with only the word that links %q and %q.", p.Connecting[0], p.Connecting[1])
	if len(p.Forbidden) > 0 {
		fmt.Fprintf(&b, " It must not equal, contain, or be part of any of: %s.", strings.Join(p.Forbidden, ", "))
	}
	return b.String()
}
