// Package bedrock talks to AWS Bedrock models: a Nova-style chat model for
// schema extraction and a Titan embedding model.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Invoker is the subset of *bedrockruntime.Client used here.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewClient loads the default AWS configuration (env, shared files, IMDS)
// and returns a Bedrock runtime client. An empty region defers to the
// environment.
func NewClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func invokeJSON(ctx context.Context, c Invoker, modelID string, req, resp any) error {
	if c == nil {
		return errors.New("bedrock: nil client")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("bedrock: encode request: %w", err)
	}
	out, err := c.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("bedrock: invoke %s: %w", modelID, err)
	}
	if err := json.Unmarshal(out.Body, resp); err != nil {
		return fmt.Errorf("bedrock: decode %s response: %w", modelID, err)
	}
	return nil
}

type textBlock struct {
	Text string `json:"text"`
}

type message struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type chatRequest struct {
	Messages []message  `json:"messages"`
	System   []textBlock `json:"system,omitempty"`
}

type chatResponse struct {
	Output *struct {
		Message *struct {
			Content []textBlock `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Content []textBlock `json:"content"`
}

// ErrUnexpectedResponse is returned when a chat response carries no text.
var ErrUnexpectedResponse = errors.New("bedrock: unexpected response format")

// Extractor asks a chat model to extract structured data from text.
type Extractor struct {
	Client  Invoker
	ModelID string
}

// Extract sends text as the user turn ("Text: ...") with systemPrompt as the
// system block and returns the model's first text block.
func (e *Extractor) Extract(ctx context.Context, text, systemPrompt string) (string, error) {
	req := chatRequest{
		Messages: []message{{Role: "user", Content: []textBlock{{Text: "Text: " + text}}}},
	}
	if systemPrompt != "" {
		req.System = []textBlock{{Text: systemPrompt}}
	}

	var resp chatResponse
	if err := invokeJSON(ctx, e.Client, e.ModelID, req, &resp); err != nil {
		return "", err
	}
	switch {
	case resp.Output != nil && resp.Output.Message != nil && len(resp.Output.Message.Content) > 0:
		return resp.Output.Message.Content[0].Text, nil
	case len(resp.Content) > 0:
		return resp.Content[0].Text, nil
	default:
		return "", ErrUnexpectedResponse
	}
}

// Embedder embeds text with a Titan-style embedding model.
type Embedder struct {
	Client  Invoker
	ModelID string
}

type embedRequest struct {
	InputText string `json:"inputText"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := invokeJSON(ctx, e.Client, e.ModelID, embedRequest{InputText: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("bedrock: %s returned an empty embedding", e.ModelID)
	}
	return resp.Embedding, nil
}
