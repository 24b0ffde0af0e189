package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a helpful AI chatbot that remembers previous messages."

// OpenAI models used when none are configured.
const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// OpenAI implements Completer and Embedder with the OpenAI API.
type OpenAI struct {
	client         openai.Client
	model          string
	embeddingModel string
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	return &OpenAI{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Complete asks the chat model to answer query with the given context.
func (o *OpenAI) Complete(ctx context.Context, query, contextText string) (string, error) {
	response, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(UserPrompt(query, contextText)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices returned", ErrCompletionUnavailable)
	}
	return response.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	response, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, errors.New("no embedding returned"))
	}

	values := response.Data[0].Embedding
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}
	return vec, nil
}

// UserPrompt builds the user message. Without context it is the bare query.
func UserPrompt(query, contextText string) string {
	if contextText == "" {
		return query
	}
	return fmt.Sprintf("Here is the chat history:\n%s\nUser: %s", contextText, query)
}
