// Package openai provides an OpenAI-backed embedding and completion client.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

// Client wraps the OpenAI SDK behind the embedding and completion
// interfaces the query engine consumes.
type Client struct {
	api        openai.Client
	embedModel openai.EmbeddingModel
	chatModel  openai.ChatModel
}

// New creates an OpenAI client. Empty model names fall back to
// text-embedding-3-small and gpt-4o-mini.
func New(apiKey, embedModel, chatModel string) *Client {
	c := &Client{
		api:        openai.NewClient(option.WithAPIKey(apiKey)),
		embedModel: openai.EmbeddingModelTextEmbedding3Small,
		chatModel:  openai.ChatModelGPT4oMini,
	}
	if embedModel != "" {
		c.embedModel = openai.EmbeddingModel(embedModel)
	}
	if chatModel != "" {
		c.chatModel = openai.ChatModel(chatModel)
	}
	return c
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one API call, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Complete runs a single chat turn and returns the reply text.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
