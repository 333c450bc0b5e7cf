package build

import (
	"fmt"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
)

const (
	callSiteOff   = "off"
	callSiteShort = "short"
	callSiteLong  = "long"

	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiFaint  = "\033[2m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// LogConfig holds options for the console logger.
//
//nolint:lll
type LogConfig struct {
	Disable      bool   `long:"disable" description:"Disable logging."`
	NoTimestamps bool   `long:"no-timestamps" description:"Omit timestamps from log lines."`
	CallSite     string `long:"call-site" description:"Include the call-site of each log line." choice:"off" choice:"short" choice:"long"`
	Style        bool   `long:"style" description:"If set, the output will be styled with color and fonts"`
}

// DefaultLogConfig returns the default logging config options.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		CallSite: callSiteOff,
	}
}

// HandlerOptions returns the set of btclog.HandlerOptions that the state of the
// config struct translates to.
func (cfg *LogConfig) HandlerOptions() []btclog.HandlerOption {
	var opts []btclog.HandlerOption

	if cfg.NoTimestamps {
		opts = append(opts, btclog.WithNoTimestamp())
	}

	if cfg.Style {
		opts = append(opts,
			btclog.WithStyledLevel(func(l btclogv1.Level) string {
				return styleString(
					fmt.Sprintf("[%s]", l), ansiBold,
					levelColor(l),
				)
			}),
			btclog.WithStyledCallSite(
				func(file string, line int) string {
					site := fmt.Sprintf("%s:%d", file, line)
					return styleString(site, ansiFaint)
				},
			),
			btclog.WithStyledKeys(func(key string) string {
				return styleString(key, ansiCyan)
			}),
		)
	}

	switch cfg.CallSite {
	case callSiteShort:
		opts = append(opts, btclog.WithCallerFlags(btclog.Lshortfile))
	case callSiteLong:
		opts = append(opts, btclog.WithCallerFlags(btclog.Llongfile))
	}

	return opts
}

// levelColor returns the ANSI color a log level is printed in.
func levelColor(l btclogv1.Level) string {
	switch l {
	case btclog.LevelTrace, btclog.LevelDebug:
		return ansiBlue
	case btclog.LevelWarn:
		return ansiYellow
	case btclog.LevelError, btclog.LevelCritical:
		return ansiRed
	default:
		return ""
	}
}

// styleString wraps s in the given ANSI styles.
func styleString(s string, styles ...string) string {
	var prefix string
	for _, style := range styles {
		prefix += style
	}
	if prefix == "" {
		return s
	}

	return prefix + s + ansiReset
}
