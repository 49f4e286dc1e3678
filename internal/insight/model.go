package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Model turns a prompt into text. It is the opaque language-model boundary.
type Model interface {
	// Complete returns the model's answer to prompt under system.
	Complete(ctx context.Context, system, prompt string,
		maxTokens int64) (string, error)

	// Name identifies the model in responses.
	Name() string
}

// AnthropicModel calls the Anthropic Messages API.
type AnthropicModel struct {
	client anthropic.Client
	model  string
}

// NewAnthropicModel returns a Model using apiKey and model. Extra options,
// such as a base URL for tests, are passed to the SDK client.
func NewAnthropicModel(apiKey, model string,
	opts ...option.RequestOption) *AnthropicModel {

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)},
		opts...)

	return &AnthropicModel{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete implements Model.
func (m *AnthropicModel) Complete(ctx context.Context, system, prompt string,
	maxTokens int64) (string, error) {

	msg, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages.new: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return text.String(), nil
}

// Name implements Model.
func (m *AnthropicModel) Name() string {
	return m.model
}

var _ Model = (*AnthropicModel)(nil)
