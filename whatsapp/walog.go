package whatsapp

import (
	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zeroWaLogger routes whatsmeow's internal logging into zerolog so the
// transport and the service share one stream.
type zeroWaLogger struct {
	log zerolog.Logger
}

func NewWaLogger(log zerolog.Logger) waLog.Logger {
	return &zeroWaLogger{log: log}
}

func (l *zeroWaLogger) Errorf(msg string, args ...interface{}) {
	l.log.Error().Msgf(msg, args...)
}

func (l *zeroWaLogger) Warnf(msg string, args ...interface{}) {
	l.log.Warn().Msgf(msg, args...)
}

func (l *zeroWaLogger) Infof(msg string, args ...interface{}) {
	l.log.Info().Msgf(msg, args...)
}

func (l *zeroWaLogger) Debugf(msg string, args ...interface{}) {
	l.log.Debug().Msgf(msg, args...)
}

func (l *zeroWaLogger) Sub(module string) waLog.Logger {
	return &zeroWaLogger{log: l.log.With().Str("module", module).Logger()}
}
