package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joncooperworks/pluginstall/artifact"
	"github.com/joncooperworks/pluginstall/bridge"
	_ "github.com/joncooperworks/pluginstall/bridge/extism"
	_ "github.com/joncooperworks/pluginstall/bridge/wasm"
	"github.com/joncooperworks/pluginstall/config"
	"github.com/joncooperworks/pluginstall/credentials"
	"github.com/joncooperworks/pluginstall/installer"
	"github.com/joncooperworks/pluginstall/launcher"
	"github.com/joncooperworks/pluginstall/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, newApp(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by every command once settings are loaded.
type app struct {
	configFile    string
	runtimeConfig string
	launcherRoot  string
	logLevel      string

	openStore func(service string) (credentials.Store, error)

	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func newApp() *app {
	return &app{
		openStore: func(service string) (credentials.Store, error) {
			return credentials.Open(service)
		},
	}
}

func run(ctx context.Context, a *app, args []string, out, errOut io.Writer) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	a.flushMetrics()
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pluginstall",
		Short:         "Install launcher plugins through the installer runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "pluginstall settings file (YAML)")
	root.PersistentFlags().StringVar(&a.runtimeConfig, "runtime-config", "", "installer runtime configuration file")
	root.PersistentFlags().StringVar(&a.launcherRoot, "launcher-root", "", "launcher configuration directory")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(newMakePluginCmd(a))
	root.AddCommand(newMakeRepoCmd(a))
	root.AddCommand(newInstallCmd(a))
	root.AddCommand(newInstallRepoCmd(a))
	root.AddCommand(newCheckPathCmd(a))
	root.AddCommand(newTokenCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newPluginConfigCmd(a))
	root.AddCommand(newSettingsCmd(a))
	return root
}

// load reads settings, applies flag overrides and builds the logger and metrics registry.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("runtime-config") {
		cfg.RuntimeConfig = a.runtimeConfig
	}
	if flags.Changed("launcher-root") {
		cfg.LauncherRoot = a.launcherRoot
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = observability.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)
	return nil
}

func (a *app) layout() (launcher.Layout, error) {
	return a.cfg.Layout()
}

func (a *app) store() (credentials.Store, error) {
	return a.openStore(a.cfg.KeyringService)
}

// withInstaller starts the installer runtime, runs fn and shuts the runtime down.
func (a *app) withInstaller(ctx context.Context, fn func(*installer.Installer) error) error {
	layout, err := a.layout()
	if err != nil {
		return err
	}

	b, err := bridge.Initialize(ctx, a.cfg.RuntimeConfig, bridge.WithLogger(a.log), bridge.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to initialize installer runtime: %w", err)
	}
	defer func() {
		if err := b.Close(context.WithoutCancel(ctx)); err != nil {
			a.log.WithError(err).Warn("failed to close installer runtime")
		}
	}()

	fetchOpts := []artifact.Option{
		artifact.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
		artifact.WithUserAgent(a.cfg.UserAgent),
		artifact.WithMaxBytes(a.cfg.MaxArchiveBytes),
		artifact.WithLogger(a.log),
		artifact.WithMetrics(a.metrics),
	}
	if store, err := a.store(); err != nil {
		a.log.WithError(err).Warn("repository tokens unavailable, fetching without credentials")
	} else {
		fetchOpts = append(fetchOpts, artifact.WithCredentials(store))
	}

	inst := installer.New(b, artifact.NewFetcher(fetchOpts...), layout.InstallRoot(),
		installer.WithLogger(a.log),
		installer.WithMetrics(a.metrics),
		installer.WithConcurrency(a.cfg.Concurrency),
	)
	return fn(inst)
}

func (a *app) flushMetrics() {
	if a.cfg == nil || a.cfg.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.registry); err != nil {
		a.log.WithError(err).WithField("path", a.cfg.MetricsFile).Warn("failed to write metrics file")
	}
}

// readInput returns the contents of path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
