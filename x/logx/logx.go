// Package logx is the level-gated logger shared by services and devices.
//
// Host builds write through log/slog; RP2040 builds print with the builtin
// println so no formatting machinery is linked into the firmware. Neither
// variant is safe to call from an interrupt handler.
package logx

import "sync/atomic"

// Level mirrors the firmware levels: 0 none, 1 error, 2 warn, 3 info, 4 debug.
type Level int32

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var level atomic.Int32

func init() { level.Store(int32(LevelInfo)) }

// SetLevel changes the global threshold.
func SetLevel(l Level) { level.Store(int32(l)) }

// GetLevel returns the global threshold.
func GetLevel() Level { return Level(level.Load()) }

// ParseLevel accepts "none", "error", "warn", "info", "debug". Unknown strings map to info.
func ParseLevel(s string) Level {
	switch s {
	case "none":
		return LevelNone
	case "error":
		return LevelError
	case "warn":
		return LevelWarn
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func enabled(l Level) bool { return l != LevelNone && l <= GetLevel() }

// Logger tags every line with a component name, e.g. "ir" or "hal".
type Logger struct {
	tag string
}

func New(tag string) *Logger { return &Logger{tag: tag} }

func (l *Logger) Tag() string { return l.tag }

func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }

func (l *Logger) log(lv Level, msg string, kv []any) {
	if !enabled(lv) {
		return
	}
	emit(lv, l.tag, msg, kv)
}
