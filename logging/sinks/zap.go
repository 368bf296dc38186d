package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"neocore/logging"
)

// Zap forwards events to a structured zap logger.
type Zap struct {
	logger *zap.Logger
}

// NewZap wraps an existing zap logger. A nil logger discards events.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger}
}

// NewZapFromConfig builds a production or development zap logger.
func NewZapFromConfig(cfg logging.ZapConfig) (*Zap, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return NewZap(logger), nil
}

func (s *Zap) Write(event logging.Event) error {
	fields := make([]zap.Field, 0, 6+len(event.Extra))
	fields = append(fields,
		zap.String("type", string(event.Type)),
		zap.Uint64("frame", event.Frame),
		zap.Time("time", event.Time),
		zap.String("source", event.Source.ID),
		zap.String("sourceKind", string(event.Source.Kind)),
		zap.String("category", event.Category),
	)
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	for k, v := range event.Extra {
		fields = append(fields, zap.Any(k, v))
	}
	message := event.Message
	if message == "" {
		message = string(event.Type)
	}
	s.logger.Log(zapLevel(event.Severity), message, fields...)
	return nil
}

// Close flushes buffered entries. Sync errors from terminal-backed writers
// are not actionable and are dropped.
func (s *Zap) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func zapLevel(sev logging.Severity) zapcore.Level {
	switch sev {
	case logging.SeverityDebug:
		return zapcore.DebugLevel
	case logging.SeverityWarn:
		return zapcore.WarnLevel
	case logging.SeverityError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
