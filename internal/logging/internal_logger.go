package logging

import "github.com/rs/zerolog"

// InternalLogger takes the progress lines of a daemon task run, such as per-invoice sync
// failures. The daemon keeps them in the task's log buffer and mirrors them to zerolog.
type InternalLogger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Zerolog writes task lines through l.
func Zerolog(l zerolog.Logger) InternalLogger {
	return zerologLines{l: l}
}

type zerologLines struct {
	l zerolog.Logger
}

func (z zerologLines) Info(format string, args ...any)  { z.l.Info().Msgf(format, args...) }
func (z zerologLines) Warn(format string, args ...any)  { z.l.Warn().Msgf(format, args...) }
func (z zerologLines) Error(format string, args ...any) { z.l.Error().Msgf(format, args...) }

// Tee sends every line to each of the loggers, skipping nil ones.
func Tee(loggers ...InternalLogger) InternalLogger {
	out := make(tee, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

type tee []InternalLogger

func (t tee) Info(format string, args ...any) {
	for _, l := range t {
		l.Info(format, args...)
	}
}

func (t tee) Warn(format string, args ...any) {
	for _, l := range t {
		l.Warn(format, args...)
	}
}

func (t tee) Error(format string, args ...any) {
	for _, l := range t {
		l.Error(format, args...)
	}
}
