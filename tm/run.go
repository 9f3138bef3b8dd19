package tm

import (
	"context"
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/spitzstats"
	"github.com/google/uuid"
)

// Config holds the task manager's bind address/port, worker-pool sizing,
// and I/O timeouts - the Go shape of tm.py's tm_addr/tm_port/tm_nw/
// tm_conn_timeout/tm_recv_timeout/tm_send_timeout globals.
type Config struct {
	Addr        string
	Port        int
	Workers     int
	Overfill    int
	RecvTimeout time.Duration
	SendTimeout time.Duration
	// MetricsAddr, if non-empty, serves the Prometheus gauges on
	// this host:port for the lifetime of Run.
	MetricsAddr string
}

// Run loads the worker pool, binds the listener, and serves connections
// until the process is terminated - either by a msg_terminate opcode or
// an external signal. Mirrors tm.py's run().
func Run(cfg Config, module *bridge.Module, argv []string) error {
	nlog.Infof("task manager instance %s starting.", uuid.New())

	stats := spitzstats.NewTM()
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	go func() {
		if err := spitzstats.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
			nlog.Errorf("metrics exporter stopped: %v", err)
		}
	}()

	results := NewResultQueue()
	pool := NewPool(module, argv, cfg.Workers, cfg.Overfill, results, stats)
	defer pool.Stop()

	server := NewServer(pool, results, cfg.RecvTimeout)

	nlog.Infof("starting network listener...")
	ln, err := Listen(cfg.Addr, cfg.Port)
	if err != nil {
		return err
	}
	defer ln.Close()

	nlog.Infof("waiting for work...")
	return Accept(ln, server.Handle)
}
