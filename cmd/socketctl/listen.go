package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kleeedolinux/socketclient/debug"
	"github.com/kleeedolinux/socketclient/socket"
)

var errReconnectExhausted = errors.New("gave up reconnecting")

func listenCmd(opts *globalOptions) *cobra.Command {
	var (
		rooms       []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream received events as JSON lines",
		Long: `Connect and print one JSON object per received event until interrupted.
Lifecycle events (connect, disconnect, error, reconnect_attempt,
reconnect_failed) are printed too. Rooms given with --room are joined on
every (re)connect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return listen(ctx, cfg, rooms, metricsAddr, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVarP(&rooms, "room", "r", nil, "Room to join after connecting (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /status on this address, e.g. :9090")

	return cmd
}

func listen(ctx context.Context, cfg socket.Config, rooms []string, metricsAddr string, w io.Writer) error {
	log := debug.Logger("socketctl")
	reg := prometheus.NewRegistry()

	client := socket.NewClient(cfg.URL,
		socket.WithConfig(cfg),
		socket.WithMetrics(reg),
	)

	out := newLinePrinter(w)
	exhausted := make(chan struct{})
	var exhaustOnce sync.Once

	// Inbound envelopes may reuse lifecycle names. Those reach the exact
	// handlers as json.RawMessage and are printed by the wildcard handler only.
	client.On(socket.EventConnect, func(data interface{}) {
		if _, ok := data.(socket.ConnectEvent); !ok {
			return
		}
		out.print(socket.EventConnect, data)
		for _, room := range rooms {
			if err := client.JoinRoom(room); err != nil {
				log.Warn().Err(err).Str("room", room).Msg("join failed")
			}
		}
	})
	for _, ev := range []socket.Event{socket.EventDisconnect, socket.EventError, socket.EventReconnectAttempt} {
		ev := ev
		client.On(ev, func(data interface{}) {
			if _, inbound := data.(json.RawMessage); inbound {
				return
			}
			out.print(ev, data)
		})
	}
	client.On(socket.EventReconnectFailed, func(data interface{}) {
		if _, ok := data.(socket.ReconnectFailedEvent); !ok {
			return
		}
		out.print(socket.EventReconnectFailed, data)
		exhaustOnce.Do(func() { close(exhausted) })
	})
	client.On(socket.EventAny, func(data interface{}) {
		env := data.(socket.Envelope)
		out.print(env.Event, env.Data)
	})

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           statusRouter(reg, client),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", metricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		client.Connect()
		defer func() {
			client.Close()
			<-client.Done()
		}()

		select {
		case <-gctx.Done():
			return nil
		case <-exhausted:
			return errReconnectExhausted
		}
	})

	return g.Wait()
}

// statusRouter exposes the client's metrics and a JSON snapshot of its
// connection.
func statusRouter(reg *prometheus.Registry, client *socket.Client) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.ConnectionInfo())
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !client.IsConnected() {
			http.Error(w, client.State().String(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type line struct {
	Time  time.Time    `json:"time"`
	Event socket.Event `json:"event"`
	Data  interface{}  `json:"data,omitempty"`
}

type linePrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLinePrinter(w io.Writer) *linePrinter {
	return &linePrinter{enc: json.NewEncoder(w)}
}

func (p *linePrinter) print(event socket.Event, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(line{Time: time.Now().UTC(), Event: event, Data: data})
}
