package build

import (
	"io"
	"sort"
	"sync"

	"github.com/btcsuite/btclog/v2"
)

// NewDefaultLogHandler returns the console handler configured by cfg, writing
// through a LogWriter so the build tags decide the final destination. A nil
// handler is returned if the config disables logging.
func NewDefaultLogHandler(cfg *LogConfig, w io.Writer) btclog.Handler {
	if cfg.Disable {
		return nil
	}

	return btclog.NewDefaultHandler(
		&LogWriter{Out: w}, cfg.HandlerOptions()...,
	)
}

// SubLoggerManager hands out subsystem loggers derived from a single handler
// and keeps track of them so their levels can be changed later.
type SubLoggerManager struct {
	handler btclog.Handler

	mu      sync.Mutex
	loggers SubLoggers
}

// A compile time check to ensure SubLoggerManager implements
// LeveledSubLogger.
var _ LeveledSubLogger = (*SubLoggerManager)(nil)

// NewSubLoggerManager creates a manager backed by the given handler. A nil
// handler makes every sub-logger disabled.
func NewSubLoggerManager(handler btclog.Handler) *SubLoggerManager {
	return &SubLoggerManager{
		handler: handler,
		loggers: make(SubLoggers),
	}
}

// GenSubLogger returns a logger for the given subsystem. It matches the
// constructor signature expected by NewSubLogger.
func (m *SubLoggerManager) GenSubLogger(subsystem string) btclog.Logger {
	if m.handler == nil {
		return btclog.Disabled
	}

	return btclog.NewSLogger(m.handler.SubSystem(subsystem))
}

// RegisterSubLogger creates the logger for a subsystem, hands it to the
// package through useLogger and remembers it.
func (m *SubLoggerManager) RegisterSubLogger(subsystem string,
	useLogger func(btclog.Logger)) {

	logger := NewSubLogger(subsystem, m.GenSubLogger)
	useLogger(logger)

	m.mu.Lock()
	m.loggers[subsystem] = logger
	m.mu.Unlock()
}

// SubLoggers returns a copy of the registered subsystem loggers.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	m.mu.Lock()
	defer m.mu.Unlock()

	loggers := make(SubLoggers, len(m.loggers))
	for subsystem, logger := range m.loggers {
		loggers[subsystem] = logger
	}

	return loggers
}

// SupportedSubsystems returns the sorted names of all registered subsystems.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	subsystems := make([]string, 0, len(m.loggers))
	for subsystem := range m.loggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems and
// invalid levels are ignored.
func (m *SubLoggerManager) SetLogLevel(subsystemID string, logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystemID]; ok {
		logger.SetLevel(level)
	}
}

// SetLogLevels sets the level of every registered subsystem.
func (m *SubLoggerManager) SetLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}
