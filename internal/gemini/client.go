package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/venuewatch/venuewatch/internal/agent"
)

// Client adapts the Gemini API to the agent.Narrator interface. Responses
// come back as ordered tagged parts; function-call parts surface as non-text
// so the aggregator can warn the operator about them.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func New(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

func (c *Client) Narrate(ctx context.Context, prompt string) ([]agent.Part, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var parts []agent.Part
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			switch v := p.(type) {
			case genai.Text:
				parts = append(parts, agent.TextPart(string(v)))
			case genai.FunctionCall:
				parts = append(parts, agent.Part{Kind: agent.PartFunctionCall})
			default:
				parts = append(parts, agent.Part{Kind: agent.PartKind(fmt.Sprintf("%T", v))})
			}
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}
	return parts, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
