// Package confirm validates provisional keyword classifications in batches
// against an LLM before anything reaches the curated store.
package confirm

import (
	"context"

	"github.com/core-sentiment/pageview-cli/internal/config"
	"github.com/core-sentiment/pageview-cli/internal/model"
	"github.com/core-sentiment/pageview-cli/pkg/anthropic"
	"github.com/core-sentiment/pageview-cli/pkg/ollama"
)

// Provider returns per-title keep verdicts for one batch of candidates.
// A missing title in the returned map counts as rejected.
type Provider interface {
	// Name identifies the provider and model, e.g. "ollama_llama3.2:1b".
	// It becomes part of the filter_method recorded with each row.
	Name() string
	Confirm(ctx context.Context, batch []model.CandidateRecord) (map[string]bool, error)
}

// OllamaProvider confirms batches against a local Ollama service.
type OllamaProvider struct {
	client      ollama.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOllamaProvider wires an Ollama client as a confirmation provider.
func NewOllamaProvider(client ollama.Client, cfg config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama_" + p.model
}

func (p *OllamaProvider) Confirm(ctx context.Context, batch []model.CandidateRecord) (map[string]bool, error) {
	resp, err := p.client.Generate(ctx, ollama.GenerateRequest{
		Model:  p.model,
		System: systemPrompt,
		Prompt: buildPrompt(batch),
		Stream: false,
		Format: "json",
		Options: ollama.Options{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	return parseVerdicts(resp.Response)
}

// AnthropicProvider confirms batches against the Anthropic API. Used when
// no local inference service is available.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider wires an Anthropic client as a confirmation provider.
func NewAnthropicProvider(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: cfg.Model}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic_" + p.model
}

func (p *AnthropicProvider) Confirm(ctx context.Context, batch []model.CandidateRecord) (map[string]bool, error) {
	temp := 0.1
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   4000,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(batch)},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseVerdicts(resp.Text())
}
