package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/esplora"
	"github.com/lightningnetwork/esplora/build"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[esplora-cli] %v\n", err)
	os.Exit(1)
}

// getClient builds the client selected by the global flags. The returned
// cleanup function must be called once the command is done.
func getClient(ctx *cli.Context, opts ...esplora.ClientOption) (
	*esplora.Client, func(), error) {

	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	var client *esplora.Client
	if ctx.GlobalBool("async") {
		client, err = esplora.NewAsyncClient(cfg, opts...)
	} else {
		client, err = esplora.NewBlockingClient(cfg, opts...)
	}
	if err != nil {
		return nil, nil, err
	}

	log.Debugf("Using %s client for %s", clientModel(ctx), client.URL())

	return client, client.Stop, nil
}

func clientModel(ctx *cli.Context) string {
	if ctx.GlobalBool("async") {
		return "async"
	}

	return "blocking"
}

// retryConfig returns the retry policy selected by the global flags.
func retryConfig(ctx *cli.Context) *esplora.RetryConfig {
	cfg := esplora.DefaultRetryConfig()
	cfg.MaxRetries = ctx.GlobalInt("retries")

	return cfg
}

// withRetry runs call under the retry policy of the global flags.
func withRetry[T any](ctx *cli.Context, ctxc context.Context,
	call func(context.Context) (T, error)) (T, error) {

	return esplora.Retry(ctxc, retryConfig(ctx), call)
}

func main() {
	app := cli.NewApp()
	app.Name = "esplora-cli"
	app.Version = build.Version() + " commit=" + build.Commit
	app.Usage = "query an Esplora block explorer"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name: "url",
			Usage: "The base URL of the Esplora API, e.g. " +
				defaultURL + ".",
		},
		cli.StringFlag{
			Name:      "configfile",
			Value:     defaultConfigFile,
			Usage:     "The path to the config file.",
			TakesFile: true,
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: esplora.DefaultRequestTimeout,
			Usage: "The timeout of a single request.",
		},
		cli.BoolFlag{
			Name: "async",
			Usage: "Use the async transport, which abandons " +
				"calls on interrupt instead of waiting for " +
				"them.",
		},
		cli.StringFlag{
			Name: "proxy",
			Usage: "An http, https or socks5 proxy URL for all " +
				"requests.",
		},
		cli.StringFlag{
			Name: "socksproxy",
			Usage: "The host:port of a Tor SOCKS proxy through " +
				"which all requests will be sent.",
		},
		cli.BoolFlag{
			Name: "streamisolation",
			Usage: "Use a separate Tor circuit for every " +
				"connection.",
		},
		cli.StringFlag{
			Name:  "useragent",
			Usage: "The User-Agent sent with every request.",
		},
		cli.StringSliceFlag{
			Name: "header",
			Usage: "An extra HTTP header sent with every " +
				"request. This flag may be specified " +
				"multiple times. " +
				"The format is: \"name:value\".",
		},
		cli.Float64Flag{
			Name: "ratelimit",
			Usage: "The maximum number of requests per second, " +
				"0 for unlimited.",
		},
		cli.IntFlag{
			Name:  "rateburst",
			Usage: "The number of requests allowed in a burst.",
		},
		cli.IntFlag{
			Name: "retries",
			Usage: "The number of times a call is retried on " +
				"transport errors and rate limiting.",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Value: defaultDebugLevel,
			Usage: "The log level for all subsystems, or a list " +
				"of <subsystem>=<level> pairs.",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		logCfg := build.DefaultLogConfig()
		logCfg.NoTimestamps = true

		_, err := setupLogging(ctx.GlobalString("debuglevel"), logCfg)
		return err
	}
	app.Commands = []cli.Command{
		tipCommand,
		headerCommand,
		txCommand,
		txStatusCommand,
		verifyCommand,
		feesCommand,
		mempoolCommand,
		broadcastCommand,
		watchCommand,
	}

	start := time.Now()
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
	log.Debugf("Done in %v", time.Since(start))
}
