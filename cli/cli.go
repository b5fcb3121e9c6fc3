package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/perfgo/e2erun/alert"
	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/driver/cdp"
	"github.com/perfgo/e2erun/driver/webdriver"
	"github.com/perfgo/e2erun/engine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "e2erun"

// exitInterrupted is the status after SIGINT/SIGTERM.
const exitInterrupted = 130

type App struct {
	logger zerolog.Logger
	cli    *cli.App

	stdin  io.Reader
	stdout io.Writer
	exit   func(code int)

	newBackend   func(logger zerolog.Logger, name string, cfg engine.RunConfig) (driver.Backend, error)
	newPoster    func(token string) alert.Poster
	newEscalator func(key string) alert.Escalator
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger:       logger,
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		exit:         os.Exit,
		newBackend:   defaultBackend,
		newPoster:    func(token string) alert.Poster { return alert.NewSlackPoster(token) },
		newEscalator: func(key string) alert.Escalator { return alert.NewOpsGenie(key) },
	}
	app.cli = &cli.App{
		Name:           AppName,
		Usage:          "Run browser end-to-end tests against a deployment",
		DefaultCommand: "run",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose (debug) logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		// Exit codes are handled by main via ExitCode.
		ExitErrHandler: func(*cli.Context, error) {},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Run the test suite once, or in a loop",
		Action: app.run,
		Flags:  runFlags(),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous test runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show runs with failed tests",
			},
			historyDirFlag(),
		},
	})
	return app
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "slow",
			Usage: "Wait up to 500ms for elements to appear before failing a lookup",
		},
		&cli.BoolFlag{
			Name:  "interactive",
			Usage: "Wait for ENTER after every passing test",
		},
		&cli.BoolFlag{
			Name:  "pause-on-err",
			Usage: "Keep the browser open after a final failure until ENTER is pressed",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Base URL of the deployment under test",
			Value: "https://sourcegraph.com",
		},
		&cli.StringFlag{
			Name:  "selenium",
			Usage: "Address of the automation server (WebDriver hub, or rod browser manager for --driver=cdp)",
			Value: "http://localhost:4444",
		},
		&cli.StringFlag{
			Name:  "browser",
			Usage: "Browser to drive (chrome or firefox)",
			Value: string(driver.Chrome),
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "Automation protocol (webdriver or cdp)",
			Value: "webdriver",
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: "Only run tests whose name contains this substring",
		},
		&cli.StringSliceFlag{
			Name:  "suite",
			Usage: "YAML file with scripted tests (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "alert-on-err",
			Usage: "Post failures to Slack and OpsGenie",
		},
		&cli.BoolFlag{
			Name:  "loop",
			Usage: "Repeat the test run until the process is killed",
		},
		&cli.IntFlag{
			Name:  "tries-before-err",
			Usage: "Attempts per test before it counts as failed",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User agent the browser must report",
			Value: engine.DefaultUserAgent,
		},
		&cli.StringFlag{
			Name:  "extension-path",
			Usage: "Browser extension bundle loaded into chrome",
			Value: engine.DefaultExtensionPath,
		},
		&cli.StringFlag{
			Name:  "repro-dir",
			Usage: "Directory named in the repro command of failure reports",
			Value: engine.DefaultReproDir,
		},
		historyDirFlag(),
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "Do not record runs",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
		},
		&cli.StringFlag{
			Name:    "slack-token",
			EnvVars: []string{alert.EnvSlackToken},
			Hidden:  true,
		},
		&cli.StringFlag{
			Name:    "slack-channel",
			EnvVars: []string{alert.EnvSlackChannel},
			Hidden:  true,
		},
		&cli.StringFlag{
			Name:    "opsgenie-key",
			EnvVars: []string{alert.EnvOpsGenieKey},
			Hidden:  true,
		},
	}
}

func historyDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "history-dir",
		Usage: "Where runs are recorded (default: <git root>/.e2erun/history)",
	}
}

func (a *App) Run(args []string) error {
	err := a.cli.Run(args)
	if err != nil && err.Error() != "" {
		a.logger.Error().Msg(err.Error())
	}
	return err
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

func defaultBackend(logger zerolog.Logger, name string, cfg engine.RunConfig) (driver.Backend, error) {
	switch name {
	case "webdriver":
		return webdriver.New(logger, cfg.Selenium), nil
	case "cdp":
		return cdp.New(logger, cfg.Selenium), nil
	}
	return nil, &engine.ConfigError{Reason: fmt.Sprintf("driver needs to be webdriver or cdp, was %s", name)}
}
