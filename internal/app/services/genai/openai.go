package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/R3E-Network/factory_os/internal/metrics"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
	// DefaultTemperature is the sampling temperature of every request.
	DefaultTemperature float32 = 0.7

	providerOpenAI = "openai"
)

// ChatCompleter is the subset of the OpenAI client the adapter needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
}

// OpenAIAdapter implements Service on the OpenAI chat completions API.
type OpenAIAdapter struct {
	client      ChatCompleter
	model       string
	temperature float32
	tokens      atomic.Int64
	log         *logging.Logger
	metrics     *metrics.Metrics
}

var _ Service = (*OpenAIAdapter)(nil)

// NewOpenAI creates an adapter with a real client.
func NewOpenAI(cfg OpenAIConfig, log *logging.Logger, m *metrics.Metrics) *OpenAIAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return NewOpenAIWithClient(openai.NewClientWithConfig(clientCfg), cfg, log, m)
}

// NewOpenAIWithClient creates an adapter on top of an existing client.
func NewOpenAIWithClient(client ChatCompleter, cfg OpenAIConfig, log *logging.Logger, m *metrics.Metrics) *OpenAIAdapter {
	if log == nil {
		log = logging.NewDefault("genai")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	return &OpenAIAdapter{
		client:      client,
		model:       model,
		temperature: temperature,
		log:         log,
		metrics:     m,
	}
}

func (a *OpenAIAdapter) Provider() string { return providerOpenAI }

func (a *OpenAIAdapter) TokenUsage() int64 { return a.tokens.Load() }

func (a *OpenAIAdapter) Ask(ctx context.Context, prompt, systemMessage string) string {
	start := time.Now()
	a.log.WithContext(ctx).WithFields(logrus.Fields{
		"provider": providerOpenAI,
		"model":    a.model,
	}).Info("ai_request_sent")

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemMessage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("provider returned no choices")
	}
	if err != nil {
		a.metrics.RecordAIRequest("error", 0, time.Since(start))
		a.log.WithContext(ctx).WithFields(logrus.Fields{
			"provider": providerOpenAI,
			"error":    err.Error(),
		}).Error("ai_provider_error")
		return ErrorMessage(err)
	}

	usage := resp.Usage.TotalTokens
	a.tokens.Add(int64(usage))
	a.metrics.RecordAIRequest("success", usage, time.Since(start))

	a.log.WithContext(ctx).WithFields(logrus.Fields{
		"tokens": usage,
		"status": "success",
	}).Info("ai_response_received")
	return resp.Choices[0].Message.Content
}

// ErrorMessage is the answer returned in place of a failed completion.
func ErrorMessage(err error) string {
	return fmt.Sprintf("Error: AI service is currently unavailable. (Trace: %v)", err)
}
