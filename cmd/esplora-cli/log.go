package main

import (
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/esplora"
	"github.com/lightningnetwork/esplora/build"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "ECLI"

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log = btclog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// setupLogging creates the console handler on stderr, so that command output
// on stdout stays machine readable, and applies the debug level string.
func setupLogging(debugLevel string, logCfg *build.LogConfig) (
	*build.SubLoggerManager, error) {

	handler := build.NewDefaultLogHandler(logCfg, os.Stderr)
	logMgr := build.NewSubLoggerManager(handler)

	logMgr.RegisterSubLogger(Subsystem, UseLogger)
	logMgr.RegisterSubLogger(esplora.Subsystem, esplora.UseLogger)

	if err := build.ParseAndSetDebugLevels(debugLevel, logMgr); err != nil {
		return nil, err
	}

	return logMgr, nil
}
