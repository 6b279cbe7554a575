package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/config"
	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/transport/tcp"
)

// benchResult is one JSON line of bench output. Times are microseconds.
type benchResult struct {
	Op      string  `json:"op"`
	Set     string  `json:"set"`
	Size    int     `json:"size"`
	Count   int     `json:"count"`
	AvgUs   float64 `json:"avg_us"`
	MinUs   float64 `json:"min_us"`
	MaxUs   float64 `json:"max_us"`
	TotalMs float64 `json:"total_ms"`
}

type timings struct {
	op    string
	count int
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func (t *timings) add(d time.Duration) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.total += d
}

func (t *timings) result(set algorithm.Set, size int) benchResult {
	r := benchResult{
		Op:      t.op,
		Set:     set.String(),
		Size:    size,
		Count:   t.count,
		MinUs:   float64(t.min.Microseconds()),
		MaxUs:   float64(t.max.Microseconds()),
		TotalMs: float64(t.total.Microseconds()) / 1000,
	}
	if t.count > 0 {
		r.AvgUs = float64(t.total.Microseconds()) / float64(t.count)
	}
	return r
}

func newBenchCommand() *cobra.Command {
	var (
		size   int
		repeat int
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time handshakes and round trips against an in-process server",
		Long: "Starts a server on a loopback port with the configured algorithm set " +
			"and a fresh key, then prints one JSON line per measured operation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 0 || repeat <= 0 {
				return oops.Errorf("size must be >= 0 and repeat > 0")
			}
			set, err := config.AlgorithmSet()
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), set, size, repeat, resume)
		},
	}
	cmd.Flags().IntVar(&size, "size", 1024, "payload size in bytes")
	cmd.Flags().IntVar(&repeat, "repeat", 100, "number of sessions")
	cmd.Flags().BoolVar(&resume, "resume", true, "also time ticket resumption")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, set algorithm.Set, size, repeat int, resume bool) error {
	cfg := tcp.DefaultServerConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Set = set
	var pub *keys.PublicKey
	if set.Asymmetric != algorithm.AsymmetricNone {
		kp, err := keys.GenerateKeyPair(set.Asymmetric)
		if err != nil {
			return err
		}
		cfg.PrivateKey, pub = kp.Private, kp.Public
	}
	srv, err := tcp.NewServer(cfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	client, err := tcp.NewClient(pub, set)
	if err != nil {
		return err
	}
	payload, err := crypto.RandomBytes(size)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, echo) })

	handshake := &timings{op: "handshake"}
	roundTrip := &timings{op: "round_trip"}
	resumption := &timings{op: "resume"}
	g.Go(func() error {
		defer cancel()
		addr := srv.Addr().String()
		for i := 0; i < repeat; i++ {
			start := time.Now()
			conn, err := client.ConnectContext(gctx, addr, 0)
			if err != nil {
				return err
			}
			handshake.add(time.Since(start))

			start = time.Now()
			_, err = exchange(conn, payload)
			conn.Close()
			if err != nil {
				return err
			}
			roundTrip.add(time.Since(start))

			t := conn.Ticket()
			if !resume || t == nil {
				continue
			}
			start = time.Now()
			resumed, err := client.ResumeContext(gctx, addr, t, 0)
			if err != nil {
				return err
			}
			resumption.add(time.Since(start))
			resumed.Close()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, t := range []*timings{handshake, roundTrip, resumption} {
		if t.count == 0 {
			continue
		}
		if err := enc.Encode(t.result(set, size)); err != nil {
			return err
		}
	}
	return nil
}
