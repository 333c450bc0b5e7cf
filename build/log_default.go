//go:build !stdlog && !nolog

package build

// LoggingType is a log type that writes to the application provided backend.
const LoggingType = LogTypeDefault

// Write writes the provided byte slice to the configured destination.
func (w *LogWriter) Write(b []byte) (int, error) {
	return w.out().Write(b)
}
