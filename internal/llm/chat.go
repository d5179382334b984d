package llm

import (
	"context"
	"fmt"

	"github.com/geo-recog/internal/pool"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ChatClient sends a fixed conversation to one backend with deterministic
// decoding and returns the assistant's text. The caller bounds the call
// with ctx.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Dialer builds the ChatClient for one endpoint.
type Dialer func(ep pool.Endpoint) ChatClient

// OpenAIChatClient talks to an OpenAI-compatible chat-completions server
// such as vLLM.
type OpenAIChatClient struct {
	client openai.Client
	model  string
}

// NewOpenAIChatClient builds a client for baseURL. Retries are disabled:
// one request per call.
func NewOpenAIChatClient(baseURL, apiKey, model string) *OpenAIChatClient {
	if apiKey == "" {
		apiKey = "None"
	}
	return &OpenAIChatClient{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model: model,
	}
}

// OpenAIDialer returns a Dialer producing OpenAIChatClients for model.
func OpenAIDialer(apiKey, model string) Dialer {
	return func(ep pool.Endpoint) ChatClient {
		return NewOpenAIChatClient(ep.BaseURL, apiKey, model)
	}
}

// Complete runs one chat completion at temperature 0.
func (c *OpenAIChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(0),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrInferenceFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
