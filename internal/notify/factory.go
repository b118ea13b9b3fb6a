package notify

import (
	"context"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
)

// BackendType selects where notices go.
type BackendType string

const (
	LogBackend    BackendType = "log"
	MemoryBackend BackendType = "memory"
	AMQPBackend   BackendType = "amqp"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case LogBackend, MemoryBackend, AMQPBackend:
		return true
	default:
		return false
	}
}

// Config holds the settings needed to build a sink.
type Config struct {
	Type         BackendType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to a sink config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	bt := BackendType(appConfig.NotifyBackend)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("invalid notify backend in config: %s", appConfig.NotifyBackend)
	}
	return Config{
		Type:         bt,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// CleanupFunc releases resources held by a sink.
type CleanupFunc func() error

// SinkResult is a sink and its cleanup.
type SinkResult struct {
	Sink    Sink
	Memory  *MemorySink
	Cleanup CleanupFunc
}

// DialFunc connects a notice publisher and returns its close function.
type DialFunc func(url, exchange, queue string, logger *log.Logger) (Publisher, func() error, error)

// Factory creates sinks from configuration.
type Factory struct {
	logger *log.Logger
	dial   DialFunc
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger, dial: dialAMQP}
}

// Dialer replaces how the AMQP backend connects.
func (f *Factory) Dialer(dial DialFunc) {
	f.dial = dial
}

func dialAMQP(url, exchange, queue string, logger *log.Logger) (Publisher, func() error, error) {
	client, err := amqp.NewClient(url, exchange, queue, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// CreateSink builds the sink named by cfg.Type.
func (f *Factory) CreateSink(ctx context.Context, cfg Config) (*SinkResult, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case LogBackend:
		return &SinkResult{Sink: NewLogSink(f.logger), Cleanup: noop}, nil

	case MemoryBackend:
		mem := NewMemorySink()
		return &SinkResult{Sink: mem, Memory: mem, Cleanup: noop}, nil

	case AMQPBackend:
		pub, closeFn, err := f.dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect notice publisher: %w", err)
		}
		f.logger.InfoContext(ctx, "AMQP notice sink ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		return &SinkResult{Sink: NewAMQPSink(pub), Cleanup: closeFn}, nil

	default:
		return nil, fmt.Errorf("unsupported notify backend: %s", cfg.Type)
	}
}
