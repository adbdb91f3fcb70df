// Package anthropic implements the generation collaborator on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// Options configures the Anthropic generator (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Generator wraps the Anthropic Messages API behind core.Generator.
type Generator struct {
	client *anthropic.Client
	opts   Options
}

// NewGenerator creates a generator using the official client.
func NewGenerator(optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Generator{client: &client, opts: opts}
}

// NewGeneratorFromClient creates a generator from an existing client.
func NewGeneratorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Generator {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Generate implements core.Generator. Failures are wrapped as transient so
// the resilience layer retries them.
func (g *Generator) Generate(ctx context.Context, instructions string, messages []core.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		Messages:    buildMessages(messages),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
	}
	if system := buildSystem(instructions, messages); len(system) > 0 {
		params.System = system
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", core.Transient("anthropic generate", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", core.Transient("anthropic generate", fmt.Errorf("empty completion"))
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

// buildMessages converts conversation messages to Anthropic message params.
// System messages ride in the request's System field instead.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Text == "" || m.Role == core.RoleSystem {
			continue
		}
		switch m.Role {
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return out
}

// buildSystem merges the instructions with any system messages in history.
func buildSystem(instructions string, messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: instructions})
	}
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Text})
		}
	}
	return blocks
}
