package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	gdnbridge "github.com/glimte/gdn-bridge"
	"github.com/glimte/gdn-bridge/bridge"
	"github.com/glimte/gdn-bridge/contracts"
	"github.com/glimte/gdn-bridge/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// eventHeartbeatFailed is printed by listen when a periodic ping fails
const eventHeartbeatFailed = "heartbeat_failed"

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newListenCommand(conn *connectionFlags) *cobra.Command {
	var (
		listenAddr string
		interval   time.Duration
		pretty     bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print events sent by GDN",
		Long: `Print every event GDN sends, one JSON object per line, until interrupted.
With --listen-addr, /metrics, /healthz and /livez are served on that address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, registry, err := conn.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			printer := &eventPrinter{out: cmd.OutOrStdout(), pretty: pretty}
			printer.subscribe(client.Bridge())

			if listenAddr != "" {
				server := newHTTPServer(listenAddr, client, registry)
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fmt.Fprintf(cmd.ErrOrStderr(), "http server failed: %v\n", err)
						cancel()
					}
				}()
				defer server.Close()
			}

			if interval > 0 {
				go heartbeat(ctx, client.Bridge(), interval, printer)
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "Listening for GDN events... Press Ctrl+C to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "address for /metrics and health endpoints, e.g. :9464")
	cmd.Flags().DurationVar(&interval, "heartbeat", 0, "ping GDN at this interval and report failures")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "print colored, human readable lines instead of JSON")
	return cmd
}

func newHTTPServer(addr string, client *gdnbridge.Client, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/healthz", health.NewHandler(client.Health(), 5*time.Second))
	mux.Handle("/livez", health.LivenessHandler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func heartbeat(ctx context.Context, b *bridge.Bridge, interval time.Duration, printer *eventPrinter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Ping(ctx); err != nil && ctx.Err() == nil {
				printer.print(eventHeartbeatFailed, map[string]string{"error": err.Error()})
			}
		}
	}
}

func newPingCommand(conn *connectionFlags) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that GDN is responsive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, _, err := conn.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			var failures int
			for i := 0; i < count && ctx.Err() == nil; i++ {
				start := time.Now()
				if err := client.Bridge().Ping(ctx); err != nil {
					failures++
					fmt.Fprintf(cmd.OutOrStdout(), "ping %d: %v\n", i+1, err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "ping %d: ok in %s\n", i+1, time.Since(start).Round(time.Microsecond))
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d pings failed", failures, count)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of pings")
	return cmd
}

func newLogCommand(conn *connectionFlags) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "log <message>",
		Short: "Show a log line in GDN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, _, err := conn.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Bridge().LogMessage(ctx, level, args[0])
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "info", "log level shown by GDN")
	return cmd
}

func newCallCommand(conn *connectionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Invoke a method on GDN and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			client, _, err := conn.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Bridge().Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return err
		},
	}
	return cmd
}

// parseParams returns the optional params argument as raw JSON
func parseParams(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := json.RawMessage(args[0])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("params must be valid JSON, got %q", args[0])
	}
	return raw, nil
}

// eventPrinter writes one line per event. It is shared by the event
// publisher and the heartbeat goroutine.
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	pretty bool
}

func (p *eventPrinter) subscribe(b *bridge.Bridge) {
	b.LoggingReceived().Subscribe(func(r contracts.LogRecord) { p.print(bridge.EventLoggingReceived, r) })
	b.CommandReceived().Subscribe(func(c contracts.CommandRequest) { p.print(bridge.EventCommandReceived, c) })
	b.RunTestsRequested().Subscribe(func(r contracts.RunTestsRequest) { p.print(bridge.EventRunTestsRequested, r) })
	b.StateRequested().Subscribe(func(s contracts.StateRequest) { p.print(bridge.EventStateRequested, s) })
	b.ActiveDocumentChanged().Subscribe(func(c contracts.ActiveDocumentChange) { p.print(bridge.EventActiveDocumentChanged, c) })
	b.HwndChanged().Subscribe(func(h contracts.HwndChange) { p.print(bridge.EventHwndChanged, h) })
}

func (p *eventPrinter) print(kind string, data interface{}) {
	now := time.Now().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pretty {
		fmt.Fprintln(p.out, renderPretty(kind, now, data))
		return
	}

	line, err := json.Marshal(struct {
		Event string      `json:"event"`
		Time  time.Time   `json:"time"`
		Data  interface{} `json:"data"`
	}{kind, now, data})
	if err != nil {
		line = []byte(fmt.Sprintf(`{"event":%q,"error":%q}`, kind, err.Error()))
	}
	fmt.Fprintln(p.out, string(line))
}
