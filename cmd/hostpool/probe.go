package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/hostpool/lib/client"
	"github.com/go-i2p/hostpool/lib/config"
	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
	"github.com/go-i2p/hostpool/lib/validation"
)

// probeReport summarizes a probe run.
type probeReport struct {
	Target      string       `json:"target"`
	Requests    int          `json:"requests"`
	Reused      int64        `json:"reused"`
	Dialed      int64        `json:"dialed"`
	Failed      int64        `json:"failed"`
	TimedOut    int64        `json:"timed_out"`
	Unavailable int64        `json:"unavailable"`
	Refused     int64        `json:"refused"`
	Elapsed     string       `json:"elapsed"`
	Pools       []pool.Stats `json:"pools"`
}

func handleProbe(args []string, cfg *config.Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	requests := fs.Int("n", 10, "Number of dials")
	concurrency := fs.Int("c", 1, "Concurrent dials")
	poolName := fs.String("pool", "", "Pool name for the per-pool granularity")
	hold := fs.Duration("hold", 0, "How long each connection is held before it is returned")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: hostpool probe [flags] <host:port>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	target := fs.Arg(0)
	if err := validation.ValidateProbeParams(target, *requests, *concurrency, *hold); err != nil {
		fmt.Fprintf(os.Stderr, "hostpool probe: %v\n", err)
		return 2
	}
	if err := validation.ValidatePoolParam(*poolName); err != nil {
		fmt.Fprintf(os.Stderr, "hostpool probe: %v\n", err)
		return 2
	}

	reg, dialer, err := newRegistry(cfg)
	if err != nil {
		logger.Error("invalid pool configuration", "error", err)
		return 1
	}
	defer reg.Close()

	ctx := context.Background()
	report := probe(ctx, dialer, target, *poolName, *requests, *concurrency, *hold, logger)

	stats, err := reg.Stats(ctx)
	if err != nil {
		logger.Error("collecting pool stats failed", "error", err)
		return 1
	}
	report.Pools = stats

	if *asJSON {
		if err := writeJSONTo(os.Stdout, report); err != nil {
			logger.Error("encoding report failed", "error", err)
			return 1
		}
	} else {
		printReport(os.Stdout, report)
	}

	if report.Failed > 0 {
		return 1
	}
	return 0
}

// probe dials target n times with c workers and returns every connection
// to the pool.
func probe(ctx context.Context, d *client.Dialer, target, poolName string, n, c int, hold time.Duration, logger *slog.Logger) *probeReport {
	report := &probeReport{Target: target, Requests: n}
	jobs := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < c; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				conn, err := d.DialPool(ctx, poolName, target)
				if err != nil {
					report.recordFailure(err)
					logger.Debug("dial failed", "target", target, "error", err)
					continue
				}
				if conn.Reused() {
					atomic.AddInt64(&report.Reused, 1)
				} else {
					atomic.AddInt64(&report.Dialed, 1)
				}
				if hold > 0 {
					time.Sleep(hold)
				}
				if err := conn.Close(); err != nil {
					logger.Debug("returning connection failed", "error", err)
				}
			}
		}()
	}
	wg.Wait()
	report.Elapsed = time.Since(start).Round(time.Millisecond).String()
	return report
}

func (r *probeReport) recordFailure(err error) {
	atomic.AddInt64(&r.Failed, 1)
	switch {
	case apperrors.IsTimeout(err):
		atomic.AddInt64(&r.TimedOut, 1)
	case apperrors.IsUnavailable(err), apperrors.IsClosed(err):
		atomic.AddInt64(&r.Unavailable, 1)
	case apperrors.IsConnection(err):
		atomic.AddInt64(&r.Refused, 1)
	}
}

func printReport(w io.Writer, r *probeReport) {
	fmt.Fprintf(w, "Target:    %s\n", r.Target)
	fmt.Fprintf(w, "Requests:  %d\n", r.Requests)
	fmt.Fprintf(w, "Reused:    %d\n", r.Reused)
	fmt.Fprintf(w, "Dialed:    %d\n", r.Dialed)
	fmt.Fprintf(w, "Failed:    %d\n", r.Failed)
	if r.Failed > 0 {
		fmt.Fprintf(w, "  timed out=%d unavailable=%d refused=%d\n", r.TimedOut, r.Unavailable, r.Refused)
	}
	fmt.Fprintf(w, "Elapsed:   %s\n", r.Elapsed)

	for _, s := range r.Pools {
		fmt.Fprintf(w, "\nPool %s (limit %d)\n", s.Name, s.Limit)
		fmt.Fprintf(w, "  %-32s %-6s %-12s %-8s\n", "KEY", "IDLE", "CHECKED OUT", "WAITING")
		for _, k := range s.Keys {
			fmt.Fprintf(w, "  %-32s %-6d %-12d %-8d\n", k.Key.String(), k.Idle, k.CheckedOut, k.Waiting)
		}
		fmt.Fprintf(w, "  reused=%d created=%d overflowed=%d rejected=%d reaped=%d probe_failures=%d discarded=%d\n",
			s.Reused, s.Created, s.Overflowed, s.Rejected, s.Reaped, s.ProbeFailures, s.Discarded)
	}
}
