package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketclient/config"
	"github.com/kleeedolinux/socketclient/debug"
	"github.com/kleeedolinux/socketclient/socket"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

var errNoURL = errors.New("no server URL: pass --url or set url in --config")

type globalOptions struct {
	configPath string
	url        string
	token      string
	namespace  string
	debug      bool
}

func (o *globalOptions) config() (socket.Config, error) {
	cfg := socket.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return socket.Config{}, err
		}
		cfg = loaded
	}

	if v := strings.TrimSpace(o.url); v != "" {
		cfg.URL = v
	}
	if o.token != "" {
		cfg.Token = o.token
	}
	if v := strings.TrimSpace(o.namespace); v != "" {
		cfg.Namespace = v
	}
	if o.debug {
		cfg.Debug = true
	}

	if cfg.URL == "" {
		return socket.Config{}, errNoURL
	}
	return cfg, nil
}

func main() {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "socketctl",
		Short: "Talk to a real-time socket server from the terminal",
		Long: `socketctl connects to a socket server speaking {"event","data"} JSON
envelopes over WebSocket. It can stream every event it receives as JSON
lines, or send a single event and exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				debug.Enable()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Client config file (.yaml, .yml or .toml)")
	flags.StringVarP(&opts.url, "url", "u", "", "Server URL, e.g. wss://rt.example.com/ws")
	flags.StringVarP(&opts.token, "token", "t", os.Getenv("SOCKETCLIENT_TOKEN"), "Auth token sent as key=<token>")
	flags.StringVarP(&opts.namespace, "namespace", "n", "", "Namespace to use (default \"/\")")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		listenCmd(opts),
		emitCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "socketctl: %s\n", err)
		os.Exit(1)
	}
}
