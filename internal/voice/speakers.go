package voice

import (
	"errors"

	"go.uber.org/zap"
)

// LogSpeaker writes utterances to the log. Used on headless installs.
type LogSpeaker struct {
	logger *zap.Logger
}

func NewLogSpeaker(logger *zap.Logger) *LogSpeaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSpeaker{logger: logger}
}

func (l *LogSpeaker) Speak(u Utterance) error {
	l.logger.Info("speak", zap.String("text", u.Text), zap.String("lang", u.Lang))
	return nil
}

func (l *LogSpeaker) CancelAll() error {
	l.logger.Debug("speech cancelled")
	return nil
}

// Multi fans utterances out to several speakers. Every speaker is called
// even if an earlier one fails; the errors are joined.
type Multi []Speaker

func (m Multi) Speak(u Utterance) error {
	var errs []error
	for _, s := range m {
		if err := s.Speak(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) CancelAll() error {
	var errs []error
	for _, s := range m {
		if err := s.CancelAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
