// Package openai implements the generation collaborator on top of the
// OpenAI Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// Options configures the OpenAI generator. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Generator wraps the OpenAI Chat Completions API behind core.Generator.
type Generator struct {
	client *openai.Client
	opts   Options
}

// NewGenerator creates a generator using the official client.
func NewGenerator(optFns ...func(o *Options)) *Generator {
	client := openai.NewClient()
	return NewGeneratorFromClient(&client, optFns...)
}

// NewGeneratorFromClient creates a generator from an existing client.
func NewGeneratorFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate implements core.Generator. Failures are wrapped as transient so
// the resilience layer retries them.
func (g *Generator) Generate(ctx context.Context, instructions string, messages []core.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(instructions, messages),
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", core.Transient("openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", core.Transient("openai generate", fmt.Errorf("no choices returned"))
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", core.Transient("openai generate", fmt.Errorf("empty completion"))
	}
	return text, nil
}

// Classify implements core.Generator using the shared classification prompt.
func (g *Generator) Classify(ctx context.Context, text string) (core.MemoryKind, bool, error) {
	reply, err := g.Generate(ctx, model.ClassifyInstructions, []core.Message{core.NewUserMessage(text)})
	if err != nil {
		return "", false, err
	}
	kind, durable := model.ParseClassification(reply)
	return kind, durable, nil
}

// buildMessages converts conversation messages into OpenAI chat messages,
// with the instructions leading as the system message.
func buildMessages(instructions string, messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if instructions != "" {
		out = append(out, openai.SystemMessage(instructions))
	}
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Text))
		default:
			out = append(out, openai.UserMessage(m.Text))
		}
	}
	return out
}
