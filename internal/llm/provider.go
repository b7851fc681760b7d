// Package llm holds the embedding and text-generation providers behind one pair of interfaces.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Provider names an embedding or generation backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

var knownProviders = map[Provider]bool{
	ProviderGemini: true,
	ProviderOpenAI: true,
}

// ParseProvider validates a provider name. Matching is case-insensitive.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if !knownProviders[p] {
		return "", fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

func (p Provider) String() string { return string(p) }

// Prompt is the provider-neutral prompt. Every provider receives the same content.
type Prompt struct {
	System string
	User   string
}

// Embedder turns texts into fixed-length vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, model string) (string, error)
}

// Registry maps providers to their clients.
type Registry struct {
	embedders  map[Provider]Embedder
	generators map[Provider]Generator
}

func NewRegistry() *Registry {
	return &Registry{
		embedders:  make(map[Provider]Embedder),
		generators: make(map[Provider]Generator),
	}
}

func (r *Registry) RegisterEmbedder(p Provider, e Embedder) {
	r.embedders[p] = e
}

func (r *Registry) RegisterGenerator(p Provider, g Generator) {
	r.generators[p] = g
}

func (r *Registry) Embedder(p Provider) (Embedder, error) {
	e, ok := r.embedders[p]
	if !ok {
		return nil, fmt.Errorf("no embedding provider registered for %q", p)
	}
	return e, nil
}

func (r *Registry) Generator(p Provider) (Generator, error) {
	g, ok := r.generators[p]
	if !ok {
		return nil, fmt.Errorf("no generation provider registered for %q", p)
	}
	return g, nil
}

// Providers lists registered generation providers, sorted.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.generators))
	for p := range r.generators {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
