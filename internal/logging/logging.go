// Package logging builds the process-wide slog.Logger: a TZ-aware
// timestamp formatter, a bounded in-memory history ring (read back through
// History), and a broadcast hook so every log line can also reach the
// notification hub. Per-day
// log-file writing is dropped in favor of plain stdout — this module owns
// no data directory of its own.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultMaxHistory = 500

// BroadcastFunc receives one formatted log line per record, non-blocking.
type BroadcastFunc func(line string)

var (
	historyMu sync.RWMutex
	history   []string
	maxHistory = defaultMaxHistory

	broadcastMu sync.RWMutex
	broadcast   BroadcastFunc
)

// SetBroadcast installs (or clears, with nil) the function invoked with
// every formatted log line. cmd/nzbstream installs a function that calls the
// notify Hub's Notify(ctx, "log", line) at startup.
func SetBroadcast(fn BroadcastFunc) {
	broadcastMu.Lock()
	broadcast = fn
	broadcastMu.Unlock()
}

// Init builds and installs the process-wide slog.Logger at the given level
// ("DEBUG"/"INFO"/"WARN"/"ERROR"), using the TZ environment variable for
// timestamp formatting.
func Init(levelStr string) *slog.Logger {
	level := parseLevel(levelStr)
	loc := loadLocation(os.Getenv("TZ"))

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().In(loc)
				return slog.String("time", t.Format("2006-01-02T15:04:05.000-07:00"))
			}
			return a
		},
	}

	base := slog.NewTextHandler(os.Stdout, opts)
	handler := &historyHandler{Handler: base, loc: loc}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

type historyHandler struct {
	slog.Handler
	loc *time.Location
}

func (h *historyHandler) Handle(ctx context.Context, r slog.Record) error {
	line := fmt.Sprintf("time=%s level=%s msg=%q", r.Time.In(h.loc).Format("2006-01-02T15:04:05.000-07:00"), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	historyMu.Lock()
	if len(history) >= maxHistory {
		history = history[1:]
	}
	history = append(history, line)
	historyMu.Unlock()

	err := h.Handler.Handle(ctx, r)

	broadcastMu.RLock()
	fn := broadcast
	broadcastMu.RUnlock()
	if fn != nil {
		fn(line)
	}

	return err
}

// History returns a copy of the buffered log lines, oldest first.
func History() []string {
	historyMu.RLock()
	defer historyMu.RUnlock()
	cp := make([]string, len(history))
	copy(cp, history)
	return cp
}
