// Package voice turns guidance text into speech requests.
package voice

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Speech parameters for Korean guidance.
const (
	Lang  = "ko-KR"
	Rate  = 0.9
	Pitch = 1.0
)

// Utterance is one speech request.
type Utterance struct {
	Text  string  `json:"text"`
	Lang  string  `json:"lang"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// Speaker plays utterances. Speak must not block on playback.
type Speaker interface {
	Speak(u Utterance) error
	CancelAll() error
}

// Announcer submits instructions to a Speaker while enabled.
type Announcer struct {
	speaker Speaker
	logger  *zap.Logger

	mu      sync.Mutex
	enabled bool
}

// NewAnnouncer creates an announcer. A nil speaker only logs.
func NewAnnouncer(speaker Speaker, enabled bool, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("voice")
	if speaker == nil {
		speaker = NewLogSpeaker(logger)
	}
	return &Announcer{speaker: speaker, enabled: enabled, logger: logger}
}

// Announce speaks text. It does nothing when disabled or text is blank.
func (a *Announcer) Announce(text string) {
	text = strings.TrimSpace(text)
	if text == "" || !a.Enabled() {
		return
	}
	u := Utterance{Text: text, Lang: Lang, Rate: Rate, Pitch: Pitch}
	if err := a.speaker.Speak(u); err != nil {
		a.logger.Warn("speak failed", zap.String("text", text), zap.Error(err))
	}
}

// CancelAll flushes pending and playing speech. Safe when idle.
func (a *Announcer) CancelAll() {
	if err := a.speaker.CancelAll(); err != nil {
		a.logger.Warn("cancel speech failed", zap.Error(err))
	}
}

func (a *Announcer) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	if !enabled {
		a.CancelAll()
	}
}

func (a *Announcer) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}
