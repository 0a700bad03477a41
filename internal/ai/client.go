// Package ai implements the import collaborators on top of an
// OpenAI-compatible chat completions API.
package ai

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/prompts"
)

// ErrEmptyResponse is returned when the API answers without any choice
var ErrEmptyResponse = errors.New("no response from AI")

var million = decimal.NewFromInt(1_000_000)

// Config holds connection and pricing settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	MaxRetries  int

	// Prices in USD per million tokens
	InputPrice  decimal.Decimal
	OutputPrice decimal.Decimal
}

// Usage is the running token and cost total of a Client
type Usage struct {
	Calls            int
	PromptTokens     int64
	CompletionTokens int64
	Cost             decimal.Decimal
}

// Client talks to the chat completions API and renders prompts
type Client struct {
	api    openai.Client
	cfg    Config
	loader *prompts.Loader
	log    logrus.FieldLogger

	mu    sync.Mutex
	usage Usage
}

// Option configures a Client
type Option func(*Client)

// WithLoader sets the prompt loader
func WithLoader(l *prompts.Loader) Option {
	return func(c *Client) { c.loader = l }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client
func New(cfg Config, opts ...Option) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		api:    openai.NewClient(reqOpts...),
		cfg:    cfg,
		loader: prompts.DefaultLoader(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Usage returns the totals of every call made so far, including calls
// whose cost is not reported back to the caller.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Cost prices a token count with the configured rates
func (c *Client) Cost(promptTokens, completionTokens int64) decimal.Decimal {
	in := c.cfg.InputPrice.Mul(decimal.NewFromInt(promptTokens)).Div(million)
	out := c.cfg.OutputPrice.Mul(decimal.NewFromInt(completionTokens)).Div(million)
	return in.Add(out)
}

// complete renders the template, sends it and decodes the JSON answer into
// out. It returns the cost of the call.
func (c *Client) complete(ctx context.Context, template string, data, out any) (decimal.Decimal, error) {
	p, err := c.loader.Render(template, data)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "render prompt")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(c.cfg.MaxTokens)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "%s request", template)
	}

	cost := c.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.mu.Lock()
	c.usage.Calls++
	c.usage.PromptTokens += resp.Usage.PromptTokens
	c.usage.CompletionTokens += resp.Usage.CompletionTokens
	c.usage.Cost = c.usage.Cost.Add(cost)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"template":          template,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"cost_usd":          cost.StringFixed(6),
	}).Debug("AI call completed")

	if len(resp.Choices) == 0 {
		return cost, ErrEmptyResponse
	}

	content := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return cost, errors.Wrapf(err, "decode %s response", template)
	}
	return cost, nil
}

// extractJSON strips markdown code fences and any prose around the first
// JSON value in s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > start {
		return s[start : end+1]
	}
	return s
}
