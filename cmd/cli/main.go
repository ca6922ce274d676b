// Command gc is a terminal client for the gophchat service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/chat"
	"github.com/and161185/gophchat/internal/config"
	"github.com/and161185/gophchat/internal/tokenstore"
	"github.com/and161185/gophchat/internal/transport/httpapi"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errNotLoggedIn = errors.New("not logged in (run: gc login -u NAME -p PASSWORD)")

// app carries flags and the objects built from them for one invocation.
type app struct {
	cfgPath  string
	server   string
	interval time.Duration
	verbose  bool

	cfg    config.Config
	log    *zap.Logger
	client *httpapi.Client

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}
	root := &cobra.Command{
		Use:               "gc",
		Short:             "Terminal client for the gophchat room",
		Version:           fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&a.server, "server", "", "server URL, overrides the config file")
	pf.DurationVar(&a.interval, "interval", 0, "poll interval, overrides the config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.messagesCmd(),
		a.usersCmd(),
		a.sendCmd(),
		a.watchCmd(),
	)
	return root
}

// setup loads the config, applies flag overrides and builds the logger and HTTP client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		cfg.Server = a.server
	}
	if cmd.Flags().Changed("interval") {
		cfg.PollInterval = a.interval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.log, err = newLogger(a.verbose); err != nil {
		return err
	}
	// the session token lives next to the config file
	store := tokenstore.NewFile(filepath.Dir(path))
	a.client, err = httpapi.New(cfg.Server, store, httpapi.WithLogger(a.log.Named("http")))
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	zc.Encoding = "console"
	zc.DisableStacktrace = true
	return zc.Build()
}

func (a *app) chatConfig() chat.Config {
	return chat.Config{PollInterval: a.cfg.PollInterval, RequestTimeout: a.cfg.RequestTimeout}
}

// timeout bounds one-shot commands the same way the controller bounds its requests.
func (a *app) timeout() time.Duration {
	if a.cfg.RequestTimeout > 0 {
		return a.cfg.RequestTimeout
	}
	if a.cfg.PollInterval > 0 {
		return a.cfg.PollInterval
	}
	return chat.DefaultPollInterval
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
