package structgen

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/structgen/internal/config"
	"github.com/temirov/structgen/internal/llm"
	"github.com/temirov/structgen/internal/metrics"
	"github.com/temirov/structgen/internal/pipeline"
)

const loggingFormatJSON = "json"

// environment is the set of long-lived collaborators one command invocation needs.
type environment struct {
	logger       *zap.Logger
	registry     *prometheus.Registry
	collector    *metrics.Collector
	orchestrator *pipeline.Orchestrator
	closers      []func() error
}

type environmentOptions struct {
	model       string
	timeout     time.Duration
	bypassCache bool
}

func newLogger(root config.Root) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(root.Common.Logging.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	var loggerConfig zap.Config
	if strings.EqualFold(root.Common.Logging.Format, loggingFormatJSON) {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}
	loggerConfig.Level = zap.NewAtomicLevelAt(level)
	loggerConfig.OutputPaths = []string{"stderr"}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf(buildLoggerErrorFormat, err)
	}
	return logger, nil
}

// newEnvironment wraps the chat completions adapter in a rate limiter and, when enabled, a
// response cache scoped to the selected model. Cache hits skip the rate limiter.
func newEnvironment(root config.Root, options environmentOptions) (*environment, error) {
	logger, err := newLogger(root)
	if err != nil {
		return nil, err
	}
	env := &environment{logger: logger, registry: prometheus.NewRegistry()}
	env.collector = metrics.NewCollector(root.Common.Metrics.Namespace, env.registry)

	adapter, err := newAdapter(root, options.model)
	if err != nil {
		return nil, err
	}

	var generator pipeline.Generator = llm.NewRateLimited(adapter, root.Common.RateLimit.RequestsPerSecond, root.Common.RateLimit.Burst)
	if root.Common.Cache.Enabled && !options.bypassCache {
		client := redis.NewClient(&redis.Options{Addr: root.Common.Cache.RedisAddr, DB: root.Common.Cache.RedisDB})
		env.closers = append(env.closers, client.Close)
		prefix := llm.ModelPrefix(root.Common.Cache.Prefix, adapter.DefaultModel)
		cache := llm.NewRedisCache(client, prefix, time.Duration(root.Common.Cache.TTLSeconds)*time.Second)
		generator = llm.NewCachingGenerator(generator, cache, logger).WithObserver(env.collector)
	}

	env.orchestrator, err = pipeline.NewOrchestrator(generator,
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(env.collector),
		pipeline.WithAttemptTimeout(options.timeout),
	)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func newAdapter(root config.Root, modelName string) (llm.Adapter, error) {
	modelConfiguration, found := root.FindModel(modelName)
	if !found {
		return llm.Adapter{}, fmt.Errorf(unknownModelErrorFormat, modelName)
	}

	apiKeyEnvironmentVariable := strings.TrimSpace(root.Common.API.APIKeyEnv)
	apiKey := strings.TrimSpace(os.Getenv(apiKeyEnvironmentVariable))
	if apiKey == "" {
		return llm.Adapter{}, fmt.Errorf(missingAPIKeyErrorFormat, apiKeyEnvironmentVariable)
	}

	temperature := modelConfiguration.DefaultTemperature
	if !modelConfiguration.SupportsTemperature {
		temperature = 0
	}
	return llm.Adapter{
		Client:        llm.Client{HTTPBaseURL: strings.TrimSpace(root.Common.API.Endpoint), APIKey: apiKey},
		DefaultModel:  modelConfiguration.ModelID,
		DefaultTemp:   temperature,
		DefaultTokens: modelConfiguration.MaxCompletionTokens,
	}, nil
}

// close flushes metrics to metricsFile when set and releases the environment.
func (env *environment) close(metricsFile string) error {
	var firstErr error
	if strings.TrimSpace(metricsFile) != "" {
		firstErr = metrics.WriteTextfile(metricsFile, env.registry)
	}
	for _, closer := range env.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = env.logger.Sync()
	return firstErr
}
