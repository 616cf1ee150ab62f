package pipeline

import (
	"context"
	"fmt"

	"github.com/seralind/ragcore/helper"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	llm       *ollama.LLM
	dimension int
}

// NewOllamaEmbedder connects to an Ollama server. dimension must match the
// model's output (768 for nomic-embed-text).
func NewOllamaEmbedder(modelName string, serverURL string, dimension int) (*OllamaEmbedder, error) {
	if modelName == "" {
		modelName = "nomic-embed-text:latest"
	}
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	if dimension <= 0 {
		return nil, helper.NewError("ollama embedder", fmt.Errorf("dimension must be positive, got %d", dimension))
	}

	llm, err := ollama.New(ollama.WithModel(modelName), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, helper.NewError("initialize ollama", err)
	}

	return &OllamaEmbedder{llm: llm, dimension: dimension}, nil
}

// EmbedTexts embeds the texts in one provider call.
func (e *OllamaEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, helper.NewError("create embedding", err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// OpenAIEmbedder embeds through the OpenAI API.
type OpenAIEmbedder struct {
	llm       *openai.LLM
	dimension int
}

// NewOpenAIEmbedder uses the given embedding model (1536 dimensions for
// text-embedding-3-small). The API key comes from the environment.
func NewOpenAIEmbedder(modelName string, dimension int) (*OpenAIEmbedder, error) {
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	if dimension <= 0 {
		return nil, helper.NewError("openai embedder", fmt.Errorf("dimension must be positive, got %d", dimension))
	}

	llm, err := openai.New(openai.WithEmbeddingModel(modelName))
	if err != nil {
		return nil, helper.NewError("initialize openai", err)
	}

	return &OpenAIEmbedder{llm: llm, dimension: dimension}, nil
}

// EmbedTexts embeds the texts in one provider call.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, helper.NewError("create embedding", err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// LLMCompleter adapts any langchaingo model to the CompletionClient
// interface.
type LLMCompleter struct {
	model llms.Model
}

// NewLLMCompleter wraps an existing langchaingo model.
func NewLLMCompleter(model llms.Model) *LLMCompleter {
	return &LLMCompleter{model: model}
}

// NewOllamaCompleter connects to an Ollama server for completions.
func NewOllamaCompleter(modelName string, serverURL string) (*LLMCompleter, error) {
	if modelName == "" {
		modelName = "mistral"
	}
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(modelName), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, helper.NewError("initialize ollama", err)
	}

	return &LLMCompleter{model: llm}, nil
}

// NewOpenAICompleter uses the OpenAI API for completions. The API key comes
// from the environment.
func NewOpenAICompleter(modelName string) (*LLMCompleter, error) {
	opts := []openai.Option{}
	if modelName != "" {
		opts = append(opts, openai.WithModel(modelName))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, helper.NewError("initialize openai", err)
	}

	return &LLMCompleter{model: llm}, nil
}

// Complete runs a single-prompt completion.
func (c *LLMCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", helper.NewError("generate completion", err)
	}
	return response, nil
}
