package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"substrata/internal/storage"
	"substrata/pkg/substrata"
)

const envPrefix = "SUBSTRATA"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs: its own viper so runs stay
// independent, and the output streams.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger *logrus.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "substratactl",
		Short:         "Evolve substrate transfer functions and count their stable states",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "optional settings file (yaml, toml or json) for flag defaults")
	flags.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.String("db-path", "substrata.db", "sqlite database path")
	flags.String("runs-dir", "runs", "directory for run artifacts")
	flags.String("exports-dir", "exports", "directory for exported runs")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.Int("seed-parallelism", 0, "seeds evaluated at once (0 = GOMAXPROCS)")

	root.AddCommand(
		a.evaluateCommand(),
		a.sweepCommand(),
		a.inspectCommand(),
		a.reportCommand(),
		a.runsCommand(),
		a.exportCommand(),
	)
	return root
}

// setup binds flags of the running command to viper, so every value can
// also come from SUBSTRATA_* variables or the --config file.
func (a *app) setup(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	logger, err := newLogger(a.stderr, v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func newLogger(w io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func (a *app) client(ctx context.Context) (*substrata.Client, error) {
	client, err := substrata.New(substrata.Options{
		StoreKind:       a.v.GetString("store"),
		DBPath:          a.v.GetString("db-path"),
		RunsDir:         a.v.GetString("runs-dir"),
		ExportsDir:      a.v.GetString("exports-dir"),
		Logger:          a.logger,
		SeedParallelism: a.v.GetInt("seed-parallelism"),
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
