// Package llm provides the upstream LLM call abstraction using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/raphaelgruber/perfsight/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Caller sends one prompt to a model and returns the reply text.
type Caller interface {
	Call(ctx context.Context, prompt, model string, temperature float64) (string, error)
}

type operationKey struct{}

// WithOperation tags ctx with a metrics operation name for Instrument.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation name carried by ctx, or metrics.OpOther.
func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return metrics.OpOther
}

// Model wraps a langchaingo LLM for single-prompt text generation.
type Model struct {
	llm          llms.Model
	provider     string
	defaultModel string
}

// NewModel creates an LLM model based on configuration.
// Missing credentials are reported here, once, rather than on every call.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		key, keyErr := cfg.ResolveOpenAIKey()
		if keyErr != nil {
			return nil, keyErr
		}
		model, err = openai.New(
			openai.WithToken(key),
			openai.WithModel(cfg.AnalysisModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.AnalysisModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.AnalysisModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.AnalysisModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:          model,
		provider:     cfg.LLMProvider,
		defaultModel: cfg.AnalysisModel,
	}, nil
}

// Call implements Caller. An empty model name uses the configured default.
func (m *Model) Call(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	if model == "" {
		model = m.defaultModel
	}
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithModel(model),
		llms.WithTemperature(temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generate (%s/%s): %w", m.provider, model, err)
	}
	return response, nil
}

// Provider returns the configured provider name.
func (m *Model) Provider() string {
	return m.provider
}

// NewCaller builds the production call stack: metrics, retries with backoff,
// client-side rate limiting and a per-attempt timeout around the provider model.
func NewCaller(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (Caller, error) {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("llm provider configured", "provider", model.Provider(), "default_model", cfg.AnalysisModel)
	return Wrap(model,
		Instrument(collector),
		Retry(cfg.LLMMaxRetries, cfg.LLMBaseBackoff, logger),
		RateLimit(cfg.LLMRPS, cfg.LLMBurst),
		Timeout(cfg.LLMTimeout),
	), nil
}
