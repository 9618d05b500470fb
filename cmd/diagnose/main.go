// Diagnostic tool for inspecting hstore containers
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-malhotra/go-hstore/hstore"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "diagnose",
		Usage:     "Inspect the objects, data and filters of an hstore container",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Set log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
			&cli.BoolFlag{Name: "development", Usage: "Use human readable development logging"},
			&cli.StringFlag{Name: "config", TakesFile: true, Usage: "Container configuration file (yaml)"},
		},
		Commands: []*cli.Command{
			lsCommand(),
			infoCommand(),
			dumpCommand(),
			attrsCommand(),
			filtersCommand(),
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, errors.Wrapf(err, "invalid --log-level %q", c.String("log-level"))
	}
	cfg := zap.NewProductionConfig()
	if c.Bool("development") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	return logger, errors.Wrap(err, "build logger")
}

// openContainer opens the container named by the first argument read-only.
// The returned function closes it and flushes the logger.
func openContainer(c *cli.Context) (*hstore.Container, func(), error) {
	if c.NArg() < 1 {
		return nil, nil, errors.New("container path is required")
	}
	logger, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}
	opts := []hstore.ContainerOption{hstore.WithLogger(logger)}
	if p := c.String("config"); p != "" {
		cfg, err := hstore.LoadConfig(p)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load config")
		}
		opts = append(opts, hstore.WithConfig(cfg))
	}
	path := c.Args().First()
	ct, err := hstore.Open(path, opts...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	return ct, func() {
		ct.Close()
		_ = logger.Sync()
	}, nil
}
