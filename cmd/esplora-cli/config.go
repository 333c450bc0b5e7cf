package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/esplora"
	"github.com/urfave/cli"
)

const (
	defaultURL            = "https://blockstream.info/api"
	defaultConfigFilename = "esplora.conf"
	defaultDebugLevel     = "warn"
)

var (
	defaultAppDir     = btcutil.AppDataDir("esplora", false)
	defaultConfigFile = filepath.Join(defaultAppDir, defaultConfigFilename)
)

// fileConfig is the layout of the optional config file. The client options
// live in the [Esplora] section.
type fileConfig struct {
	Esplora *esplora.Config `group:"Esplora" namespace:"esplora"`
}

// loadConfigFile reads the client options from an ini file on top of cfg. A
// missing file is not an error unless it was requested explicitly.
func loadConfigFile(path string, explicit bool, cfg *esplora.Config) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}

		return err
	}

	parser := flags.NewParser(
		&fileConfig{Esplora: cfg}, flags.IgnoreUnknown,
	)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return fmt.Errorf("unable to parse config file %s: %w", path,
			err)
	}

	return nil
}

// parseHeaders parses "name:value" pairs.
func parseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, ":")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid header %q, use "+
				"name:value", pair)
		}

		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	return headers, nil
}

// loadConfig assembles the client config from the defaults, the config file
// and the global command line flags, in increasing order of precedence.
func loadConfig(ctx *cli.Context) (*esplora.Config, error) {
	cfg := esplora.DefaultConfig()

	err := loadConfigFile(
		ctx.GlobalString("configfile"), ctx.GlobalIsSet("configfile"),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	switch {
	case ctx.GlobalIsSet("url"):
		cfg.URL = ctx.GlobalString("url")

	case cfg.URL == "":
		cfg.URL = defaultURL
	}

	if ctx.GlobalIsSet("timeout") {
		cfg.RequestTimeout = ctx.GlobalDuration("timeout")
	}
	if ctx.GlobalIsSet("proxy") {
		cfg.Proxy = ctx.GlobalString("proxy")
	}
	if ctx.GlobalIsSet("socksproxy") {
		cfg.Tor = &esplora.Tor{
			Active:          true,
			SOCKS:           ctx.GlobalString("socksproxy"),
			StreamIsolation: ctx.GlobalBool("streamisolation"),
		}
	}
	if ctx.GlobalIsSet("ratelimit") {
		cfg.RateLimit = ctx.GlobalFloat64("ratelimit")
	}
	if ctx.GlobalIsSet("rateburst") {
		cfg.RateBurst = ctx.GlobalInt("rateburst")
	}
	if ctx.GlobalIsSet("useragent") {
		cfg.UserAgent = ctx.GlobalString("useragent")
	}

	headers, err := parseHeaders(ctx.GlobalStringSlice("header"))
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 && cfg.Headers == nil {
		cfg.Headers = make(map[string]string, len(headers))
	}
	for name, value := range headers {
		cfg.Headers[name] = value
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
