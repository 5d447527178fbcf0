package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/elder-companion/backend/internal/model/persona"
)

const (
	DefaultBaseURL     = "https://api.siliconflow.cn/v1"
	DefaultModel       = "Qwen/Qwen2.5-7B-Instruct"
	DefaultTemperature = float32(0.7)
	DefaultMaxTokens   = 800
)

// Config holds the process-level settings of the completion endpoint.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
	HTTPClient   *http.Client
}

// Result is a successful completion.
type Result struct {
	Text  string
	Model string
}

// Client issues one chat-completion request per Complete call. It never retries.
type Client struct {
	api    *openai.Client
	cfg    Config
	prompt *promptBuilder
	logger *zap.Logger
}

// NewClient builds a client; zero-valued settings take the package defaults.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		api:    openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		prompt: newPromptBuilder(cfg.SystemPrompt),
		logger: logger.Named("completion"),
	}
}

// ForPersona returns a client that shares the transport but sends p's system prompt.
func (c *Client) ForPersona(p persona.Persona) *Client {
	clone := *c
	clone.cfg.SystemPrompt = p.SystemPrompt
	clone.prompt = newPromptBuilder(p.SystemPrompt)
	return &clone
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends userText with the persona system turn and returns the generated reply.
// Every failure is reported as *Error.
func (c *Client) Complete(ctx context.Context, userText string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, &Error{Kind: KindConfiguration, Message: ErrMissingAPIKey.Error(), Err: ErrMissingAPIKey}
	}

	messages, err := c.prompt.build(ctx, userText)
	if err != nil {
		return Result{}, &Error{Kind: KindConfiguration, Message: err.Error(), Err: err}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		cerr := classify(err)
		c.logger.Warn("completion request failed",
			zap.String("kind", string(cerr.Kind)),
			zap.Int("status", cerr.StatusCode),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return Result{}, cerr
	}

	if len(resp.Choices) == 0 {
		return Result{}, &Error{Kind: KindMalformedResponse, Message: "response contains no choices"}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Result{}, &Error{Kind: KindMalformedResponse, Message: "response choice has no message content"}
	}

	model := resp.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.logger.Debug("completion succeeded",
		zap.String("model", model),
		zap.Int("length", len(text)),
		zap.Duration("elapsed", time.Since(started)))

	return Result{Text: text, Model: model}, nil
}

// classify maps go-openai errors onto the completion error taxonomy.
func classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = statusDescription(apiErr.HTTPStatusCode)
		}
		return &Error{Kind: KindUpstream, Message: message, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Kind:       KindUpstream,
			Message:    statusDescription(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
		return &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf("undecodable response body: %v", err), Err: err}
	}

	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}
