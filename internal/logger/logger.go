// Package logger records navigation trips to CSV files.
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/navigation"
)

// Logger writes one CSV row per session event with automatic rotation.
// Position updates are throttled to the configured interval; transitions
// are always written.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	log      *zap.Logger
	now      func() time.Time

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // ~28 hrs at 1 Hz
	defaultDir     = "/var/log/navcore"
)

var csvHeader = []string{
	"timestamp", "session_id", "event", "state", "mode",
	"step_index", "step_count", "instruction",
	"remaining_m", "remaining_min",
	"lat", "lng", "accuracy_m", "speed_kph", "heading",
	"announcement", "error_code",
	"destination", "estimated",
}

// New creates a new Logger.
func New(cfg Config, log *zap.Logger) *Logger {
	if cfg.Path == "" {
		cfg.Path = defaultDir
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 100*time.Millisecond {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		log:      log.Named("triplog"),
		now:      time.Now,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SessionEvent records e.
func (l *Logger) SessionEvent(e navigation.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := l.now()
	if e.Type == navigation.EventUpdated && now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	// A new trip starts a new file.
	if l.writer == nil || l.rows >= maxRowsPerFile || e.Type == navigation.EventStarted {
		if err := l.rotateFile(now); err != nil {
			l.log.Error("rotate failed", zap.Error(err))
			return
		}
	}

	if err := l.writer.Write(buildRow(now, e)); err != nil {
		l.log.Error("write failed", zap.Error(err))
		return
	}
	l.writer.Flush()
	l.rows++

	if e.Snapshot.State.Terminal() {
		l.closeFile()
	}
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("trip_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	l.log.Info("opened trip log", zap.String("path", path))
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, e navigation.Event) []string {
	row := make([]string, len(csvHeader))
	s := e.Snapshot

	row[0] = ts.Format(time.RFC3339Nano)
	row[1] = e.SessionID
	row[2] = string(e.Type)
	row[3] = s.State.String()
	row[4] = string(s.Mode)
	row[5] = strconv.Itoa(s.CurrentStepIndex)
	row[6] = strconv.Itoa(s.StepCount)
	if s.CurrentStep != nil {
		row[7] = s.CurrentStep.Instruction
	}
	row[8] = fmt.Sprintf("%.0f", s.RemainingDistance)
	row[9] = strconv.Itoa(s.RemainingTime)

	if g := s.LastSample; g != nil {
		row[10] = fmt.Sprintf("%.6f", g.Coordinate.Lat)
		row[11] = fmt.Sprintf("%.6f", g.Coordinate.Lng)
		row[12] = optFloat(g.Accuracy)
		row[13] = optFloat(g.Speed)
		row[14] = optFloat(g.Heading)
	}

	row[15] = e.Announcement
	row[16] = e.ErrorCode
	row[17] = s.Destination.Name
	row[18] = boolStr(s.Estimated)

	return row
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *v)
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
