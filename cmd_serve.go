package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openus/go-secproto/lib/config"
	"github.com/openus/go-secproto/lib/metrics"
	"github.com/openus/go-secproto/lib/transport"
	"github.com/openus/go-secproto/lib/transport/tcp"
	"github.com/openus/go-secproto/lib/util"
	"github.com/openus/go-secproto/lib/util/signals"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		Long: "Accepts sessions and echoes every record back. SIGHUP reloads the " +
			"blacklist from the config file; SIGINT or SIGTERM stops the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			pre := signals.RegisterPreShutdownHandler(cancelHandler(cancel))
			defer signals.DeregisterPreShutdownHandler(pre)
			intr := signals.RegisterInterruptHandler(func() {
				if err := util.CloseAll(); err != nil {
					log.WithField("at", "main.serve").WithError(err).Warn("close_on_interrupt_failed")
				}
			})
			defer signals.DeregisterInterruptHandler(intr)
			go signals.Handle()
			defer signals.StopHandle()

			return runServe(ctx, cmd.OutOrStdout(), nil)
		},
	}
	f := cmd.Flags()
	f.String("listen", "", "address to listen on")
	f.String("metrics", "", "address for the Prometheus endpoint, empty to disable")
	f.Duration("ticket-time", 0, "ticket lifetime, 0 disables resumption")
	f.Duration("ticket-cleaner", 0, "interval of the expired ticket sweep")
	bindFlag(cmd, config.KeyListen, "listen")
	bindFlag(cmd, config.KeyMetricsAddress, "metrics")
	bindFlag(cmd, config.KeyTicketTime, "ticket-time")
	bindFlag(cmd, config.KeyTicketCleaner, "ticket-cleaner")
	return cmd
}

// runServe blocks until ctx is cancelled. ready, when set, receives the
// bound address once the server accepts connections.
func runServe(ctx context.Context, out io.Writer, ready func(net.Addr)) error {
	cfg, err := config.NewServerConfigFromViper()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	cfg.Metrics, err = metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	srv, err := tcp.NewServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()
	defer util.CloseAll()

	if addr := viper.GetString(config.KeyMetricsAddress); addr != "" {
		bound, err := serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "metrics on http://%s/metrics\n", bound)
	}

	reload := signals.RegisterReloadHandler(func() {
		if err := viper.ReadInConfig(); err != nil {
			log.WithField("at", "main.serve").WithError(err).Warn("config_reload_failed")
			return
		}
		srv.Blacklist().Replace(config.Blacklist()...)
		log.WithFields(logger.Fields{
			"at":      "main.serve",
			"entries": srv.Blacklist().Len(),
		}).Info("blacklist_reloaded")
	})
	defer signals.DeregisterReloadHandler(reload)

	fmt.Fprintf(out, "listening on %s (%s)\n", srv.Addr(), cfg.Set)
	if ready != nil {
		ready(srv.Addr())
	}
	return srv.Serve(ctx, echo)
}

func serveMetrics(addr string, reg *prometheus.Registry) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	util.RegisterCloser(hs)
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("at", "main.serveMetrics").WithError(err).Error("metrics_server_failed")
		}
	}()
	return ln.Addr(), nil
}

// echo writes every record back until the peer goes away.
func echo(c *tcp.Conn) {
	for {
		p, err := c.Read(transport.Fail)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrClosed) {
				log.WithFields(logger.Fields{
					"at":     "main.echo",
					"remote": c.RemoteAddr().String(),
				}).WithError(err).Warn("echo_read_failed")
			}
			return
		}
		if err := c.Send(p); err != nil {
			return
		}
	}
}

// cancelHandler adapts cancel so shutdown signals stop Serve before the
// interrupt handlers close what is left.
func cancelHandler(cancel context.CancelFunc) signals.Handler {
	return func() { cancel() }
}
