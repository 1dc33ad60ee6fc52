package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleeedolinux/socketclient/socket"
)

func emitCmd(opts *globalOptions) *cobra.Command {
	var (
		room    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "emit <event> <json>",
		Short: "Send one event and exit",
		Example: `  socketctl emit chat '{"text":"hello"}' --url ws://localhost:8080/socket
  socketctl emit chat '{"text":"hi room"}' --room lobby -c client.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("data is not valid JSON: %s", args[1])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return emitOnce(ctx, cfg, room, socket.Event(args[0]), json.RawMessage(args[1]))
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Join this room before sending")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up if not connected within this time")

	return cmd
}

func emitOnce(ctx context.Context, cfg socket.Config, room string, event socket.Event, data json.RawMessage) error {
	cfg.Reconnect.Enabled = false
	client := socket.NewClient(cfg.URL, socket.WithConfig(cfg))
	defer func() {
		client.Close()
		<-client.Done()
	}()

	connected := make(chan struct{})
	failed := make(chan error, 1)
	var connectOnce sync.Once
	client.On(socket.EventConnect, func(data interface{}) {
		if _, ok := data.(socket.ConnectEvent); ok {
			connectOnce.Do(func() { close(connected) })
		}
	})
	client.On(socket.EventError, func(data interface{}) {
		if ev, ok := data.(socket.ErrorEvent); ok {
			select {
			case failed <- ev.Err:
			default:
			}
		}
	})

	client.Connect()

	select {
	case <-connected:
	case err := <-failed:
		return fmt.Errorf("connect: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("connect: %w", ctx.Err())
	}

	if room != "" {
		if err := client.JoinRoom(room); err != nil {
			return err
		}
	}
	if err := client.Emit(event, data); err != nil {
		return err
	}

	client.Disconnect()
	return nil
}
