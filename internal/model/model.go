package model

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Model generates text from a content bundle and an instruction.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is one model call.
type Request struct {
	// Items are sent first, in order, as inline parts.
	Items []domain.ContentItem
	// Prompt is the per-call instruction appended after the items.
	Prompt            string
	SystemInstruction string
	// UseSchema asks for structured JSON matching TestCaseSchema.
	UseSchema bool
	// Expansion adds the hasMore flag to the schema.
	Expansion bool
}

// GenAIClient implements Model on the Gemini API.
type GenAIClient struct {
	client *genai.Client
	cfg    config.ModelConfig
	log    logrus.FieldLogger
}

// NewGenAIClient creates a Gemini client from the model configuration.
func NewGenAIClient(ctx context.Context, cfg config.ModelConfig, log logrus.FieldLogger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewErrorWithSuggestion("model", cfg.Name, "API key is required",
			"set QAGEN_GEMINI_API_KEY or model.api_key", nil)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.NewError("model", cfg.Name, "failed to create GenAI client", err)
	}

	return &GenAIClient{
		client: client,
		cfg:    cfg,
		log:    log.WithField("component", "model"),
	}, nil
}

// Generate sends the request and returns the response text.
func (c *GenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens:  c.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.UseSchema {
		gc.ResponseSchema = TestCaseSchema(req.Expansion)
	}

	contents := []*genai.Content{genai.NewContentFromParts(Parts(req), genai.RoleUser)}

	c.log.WithFields(logrus.Fields{
		"model": c.cfg.Name,
		"items": len(req.Items),
	}).Debug("Calling model")

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Name, contents, gc)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Parts converts the content bundle and prompt into request parts.
func Parts(req Request) []*genai.Part {
	parts := make([]*genai.Part, 0, len(req.Items)+1)
	for _, item := range req.Items {
		switch item.Kind {
		case domain.ItemImage:
			parts = append(parts, genai.NewPartFromBytes(item.Data, item.MIMEType))
		case domain.ItemText:
			if item.Text != "" {
				parts = append(parts, genai.NewPartFromText(item.Text))
			}
		}
	}
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	return parts
}
