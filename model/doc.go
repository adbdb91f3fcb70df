// Package model defines the shared protocol between the orchestrator and the
// language-model providers: the classification prompt used to decide which
// user statements are worth remembering, its reply parser, and a mock
// generator for tests and examples. Provider adapters live in the
// subpackages anthropic and openai.
package model
