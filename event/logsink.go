package event

import (
	"github.com/evalgo/cascade/logging"
	"github.com/sirupsen/logrus"
)

// LogSink delivers events through a logging.ContextLogger. Every event
// kind logs at Debug.
type LogSink struct {
	logger *logging.ContextLogger
}

// NewLogSink wraps the given logrus logger (or logging.Logger if nil) as
// an event.Sink.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logging.NewContextLogger(logger, nil)}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	l := s.logger.WithFields(map[string]interface{}{
		"event": e.Kind.String(),
		"key":   e.Key.String(),
	})
	if e.Kind == WillIterateCycle {
		l = l.WithField("iteration", e.Iteration)
	}
	l.Debug("cascade event")
}
