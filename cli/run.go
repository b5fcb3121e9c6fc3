package cli

// This file contains the run command: it wires configuration, the test
// registry, alerting, metrics and run history into the engine.

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/perfgo/e2erun/alert"
	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
	"github.com/perfgo/e2erun/history"
	"github.com/perfgo/e2erun/metrics"
	"github.com/perfgo/e2erun/model"
	"github.com/perfgo/e2erun/suite"
	"github.com/urfave/cli/v2"
)

func (a *App) run(c *cli.Context) error {
	cfg, err := engine.RunConfig{
		URL:           c.String("url"),
		Selenium:      c.String("selenium"),
		Browser:       driver.Kind(c.String("browser")),
		Filter:        c.String("filter"),
		MaxAttempts:   c.Int("tries-before-err"),
		AlertOnErr:    c.Bool("alert-on-err"),
		PauseOnErr:    c.Bool("pause-on-err"),
		Interactive:   c.Bool("interactive"),
		Slow:          c.Bool("slow"),
		Loop:          c.Bool("loop"),
		UserAgent:     c.String("user-agent"),
		ExtensionPath: c.String("extension-path"),
		ReproDir:      c.String("repro-dir"),
	}.Validate()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// Alerting credentials are checked before anything touches a browser.
	creds := alert.Credentials{
		SlackToken:   c.String("slack-token"),
		SlackChannel: c.String("slack-channel"),
		OpsGenieKey:  c.String("opsgenie-key"),
	}
	if cfg.AlertOnErr {
		if err := creds.Validate(); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	tests, err := a.selectTests(c.StringSlice("suite"), cfg.Filter)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(tests) == 0 {
		a.logger.Warn().Str("filter", cfg.Filter).Msg("No tests match the filter")
	}

	driverName := c.String("driver")
	backend, err := a.newBackend(a.logger, driverName, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	opts := []engine.Option{
		engine.WithPrompter(&engine.LinePrompter{In: a.stdin, Out: os.Stderr}),
	}

	if cfg.AlertOnErr {
		session := alert.Start(ctx, alert.Options{
			Logger:    a.logger,
			Poster:    a.newPoster(creds.SlackToken),
			Escalator: a.newEscalator(creds.OpsGenieKey),
			Channel:   creds.SlackChannel,
			Browser:   cfg.Browser,
			Tests:     suite.Names(tests),
			ReproDir:  cfg.ReproDir,
		})
		defer session.Close(context.WithoutCancel(ctx))
		stopWatch := a.watchSignals(ctx, session)
		defer stopWatch()
		opts = append(opts, engine.WithAlerter(session))
	}

	if addr := c.String("metrics-addr"); addr != "" {
		rec := metrics.NewRecorder(string(cfg.Browser))
		if _, err := rec.Serve(ctx, a.logger, addr); err != nil {
			return cli.Exit("failed to serve metrics: "+err.Error(), 1)
		}
		opts = append(opts, engine.WithObserver(rec))
	}

	if !c.Bool("no-history") {
		if rec, err := a.historyRecorder(c, cfg, driverName); err != nil {
			a.logger.Warn().Err(err).Msg("Run history disabled")
		} else {
			opts = append(opts, engine.WithObserver(rec))
		}
	}

	factory := engine.NewSessionFactory(a.logger, backend, cfg)
	e := engine.New(a.logger, cfg, factory, opts...)

	if cfg.Loop {
		if err := e.Loop(ctx, tests); err != nil && !errors.Is(err, context.Canceled) {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}

	if result := e.Run(ctx, tests); !result.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// selectTests builds the registry from the built-in tests plus every suite
// file and applies the name filter.
func (a *App) selectTests(suites []string, filter string) ([]engine.TestCase, error) {
	registry, err := suite.NewRegistry(suite.Builtin()...)
	if err != nil {
		return nil, err
	}
	for _, path := range suites {
		cases, err := suite.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(cases...); err != nil {
			return nil, err
		}
		a.logger.Debug().Str("suite", path).Int("tests", len(cases)).Msg("Loaded scripted tests")
	}
	return registry.Filter(filter), nil
}

// watchSignals posts the death notice and exits when the process is
// interrupted. The returned func stops watching.
func (a *App) watchSignals(ctx context.Context, session *alert.Session) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			a.logger.Warn().Str("signal", sig.String()).Msg("Interrupted")
			session.Close(context.WithoutCancel(ctx))
			a.exit(exitInterrupted)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func (a *App) historyRecorder(c *cli.Context, cfg engine.RunConfig, driverName string) (*runRecorder, error) {
	root := c.String("history-dir")
	if root == "" {
		var err error
		if root, err = history.DefaultRoot(); err != nil {
			return nil, err
		}
	}
	return newRunRecorder(a.logger, root, model.Target{
		URL:              cfg.URL,
		Browser:          string(cfg.Browser),
		Driver:           driverName,
		AutomationServer: cfg.Selenium,
	}, cfg.Loop), nil
}
