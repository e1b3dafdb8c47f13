package badgerlog

import (
	"strings"

	"github.com/rs/zerolog"
)

// zerologAdapter routes Badger's internal logging through zerolog.
type zerologAdapter struct {
	log *zerolog.Logger
}

func newLogger(logger *zerolog.Logger) *zerologAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	sub := logger.With().Str("component", "badger").Logger()
	return &zerologAdapter{log: &sub}
}

func (a *zerologAdapter) Errorf(format string, args ...any) {
	a.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (a *zerologAdapter) Warningf(format string, args ...any) {
	a.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (a *zerologAdapter) Infof(format string, args ...any) {
	a.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (a *zerologAdapter) Debugf(format string, args ...any) {
	a.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
