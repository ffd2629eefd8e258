// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/decred/slog"
)

// Every component constructor will accept a Logger. All logging should take
// place through the provided logger.
type Logger = slog.Logger

// Disabled is a Logger that will never output anything.
var Disabled Logger = slog.Disabled

// Log levels re-exported for callers that do not import slog directly.
const (
	LevelTrace    = slog.LevelTrace
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.LevelCritical
	LevelOff      = slog.LevelOff
)

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses the debug level string into a new LoggerMaker. The
// debugLevel string can specify a single verbosity for the entire system:
// "trace", "debug", "info", "warn", "error", "critical", "off". The Levels
// map will be empty.
//
// Or the verbosity can be specified for individual subsystems, separating
// subsystems by commas and assigning each specifically. Such a debugLevel
// string might look like `GATE=debug,WEB=trace`. A bare level may be mixed in
// to set the default, e.g. `info,GATE=debug`.
func NewLoggerMaker(writer io.Writer, debugLevel string) (*LoggerMaker, error) {
	lm := &LoggerMaker{
		Backend:      slog.NewBackend(writer),
		Levels:       make(map[string]slog.Level),
		DefaultLevel: slog.LevelInfo,
	}

	for _, s := range strings.Split(debugLevel, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "=") {
			lvl, ok := slog.LevelFromString(s)
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", s)
			}
			lm.DefaultLevel = lvl
			continue
		}
		fields := strings.Split(s, "=")
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid subsystem log level %q", s)
		}
		subsysID, lvlStr := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		lvl, ok := slog.LevelFromString(lvlStr)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q for subsystem %s", lvlStr, subsysID)
		}
		lm.Levels[subsysID] = lvl
	}

	return lm, nil
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// level was parsed for the subsystem, it is used. Otherwise the DefaultLevel
// is used.
func (lm *LoggerMaker) NewLogger(name string) Logger {
	lvl, ok := lm.Levels[name]
	if !ok {
		lvl = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// StdOutLogger creates a Logger with the provided name with lvl as the log
// level and prints to standard out.
func StdOutLogger(name string, lvl slog.Level) Logger {
	backend := slog.NewBackend(os.Stdout)
	logger := backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}
