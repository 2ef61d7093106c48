// Package openai implements both inference capabilities against any OpenAI-compatible
// chat completions endpoint with image input.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/inference"
	"github.com/GriffinCanCode/olfactory-vision/internal/model"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Config configures the client.
type Config struct {
	APIKey         string
	BaseURL        string // empty uses the go-openai default
	VisualModel    string
	OlfactoryModel string
	ImageDetail    openai.ImageURLDetail
	Temperature    float32
	Breaker        resilience.Config
	HTTPClient     *http.Client
}

// Client calls the chat completions API. Per-call deadlines come from the caller's context.
type Client struct {
	api     *openai.Client
	cfg     Config
	breaker *resilience.Breaker
}

var (
	_ inference.Visual    = (*Client)(nil)
	_ inference.Olfactory = (*Client)(nil)
)

// New creates a client; an API key and both model names are required.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.APIKey == "":
		return nil, apperr.New(apperr.CodeConfigInvalid, "inference API key not set")
	case cfg.VisualModel == "" || cfg.OlfactoryModel == "":
		return nil, apperr.New(apperr.CodeConfigInvalid, "visual and olfactory model names are required")
	}
	if cfg.ImageDetail == "" {
		cfg.ImageDetail = openai.ImageURLDetailLow
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "openai"
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		api:     openai.NewClientWithConfig(oc),
		cfg:     cfg,
		breaker: resilience.New(cfg.Breaker),
	}, nil
}

// Breaker exposes the client's circuit breaker so callers can attach hooks.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// InferVisual sends every frame as an inline JPEG image part, each preceded by a caption.
func (c *Client) InferVisual(ctx context.Context, frames []model.Frame, directive string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai.infer_visual")
	defer span.End()
	span.SetAttr("frames", len(frames))
	span.SetAttr("retry", directive != "")

	parts := make([]openai.ChatMessagePart, 0, 2*len(frames)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: inference.VisualUserPrompt(frames, directive),
	})
	for _, f := range frames {
		parts = append(parts,
			openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: inference.FrameCaption(f)},
			openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.Image),
					Detail: c.cfg.ImageDetail,
				},
			})
	}

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.VisualModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: inference.VisualSystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
}

// InferOlfactory sends the serialized visual timeline as plain text.
func (c *Client) InferOlfactory(ctx context.Context, visualReport []byte) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai.infer_olfactory")
	defer span.End()
	span.SetAttr("bytes", len(visualReport))

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.OlfactoryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: inference.OlfactorySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(visualReport)},
		},
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Temperature = c.cfg.Temperature
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}

	log := trace.Logger(ctx)
	start := time.Now()

	resp, err := resilience.ExecuteWithResult(c.breaker, func() (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		err = classify(ctx, err)
		log.Warn("chat completion failed", "model", req.Model, "code", apperr.CodeOf(err), "error", err)
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", apperr.New(apperr.CodeSchema, "empty completion").WithMetadata("model", req.Model)
	}
	log.Debug("chat completion",
		"model", req.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// classify maps transport and API failures onto the shared error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, resilience.ErrOpen) {
		return err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return apperr.Wrap(err, apperr.CodeCancelled, "inference cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.CodeTransient, "inference request timed out")
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return apperr.Wrap(err, apperr.CodeRateLimited, "inference rate limited")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Wrap(err, apperr.CodeConfigInvalid, "inference credentials rejected")
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return apperr.Wrapf(err, apperr.CodeValidation, "inference request rejected (%d)", status)
	default:
		// 5xx, 408 and connection-level failures.
		return apperr.Wrap(err, apperr.CodeTransient, "inference call failed")
	}
}
