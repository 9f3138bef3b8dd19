// Package spitzstats exposes the job/task manager's running invariants
// as Prometheus metrics - an observable, always-on sibling to
// cmn/debug's panic-on-violation assertions, built on
// github.com/prometheus/client_golang/prometheus/promauto for ad-hoc
// gauges/counters registered once at process startup.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package spitzstats

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JM holds the job manager's gauges/counters: queue depth (tasklist
// size), completed count, and duplicate/stray delivery counters (the
// observable form of the duplicate-commit resolution).
type JM struct {
	Pending      prometheus.Gauge
	Completed    prometheus.Gauge
	Duplicates   prometheus.Counter
	StrayResults prometheus.Counter
	Generated    prometheus.Counter
}

func NewJM() *JM {
	return &JM{
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spitz_jm_tasks_pending",
			Help: "Number of generated tasks awaiting a result (the in-flight tasklist).",
		}),
		Completed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spitz_jm_tasks_completed",
			Help: "Number of distinct taskids whose result has been received, whatever their worker or commit status.",
		}),
		Duplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spitz_jm_duplicate_results_total",
			Help: "Number of results received for a taskid already marked completed.",
		}),
		StrayResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spitz_jm_stray_results_total",
			Help: "Number of results received for a taskid never in the tasklist.",
		}),
		Generated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spitz_jm_tasks_generated_total",
			Help: "Number of tasks handed out by the job module's generator.",
		}),
	}
}

// TM holds the task manager's worker-pool gauges: the intake-queue depth
// (bounded by the configured nw+overfill; tasks a worker is already
// running are not counted), and completed/rejected counters.
type TM struct {
	InFlight  prometheus.Gauge
	Completed prometheus.Counter
	Rejected  prometheus.Counter
}

func NewTM() *TM {
	return &TM{
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spitz_tm_tasks_inflight",
			Help: "Number of accepted tasks waiting in the pool's intake queue; tasks a worker is running are not counted.",
		}),
		Completed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spitz_tm_tasks_completed_total",
			Help: "Number of tasks run to completion by a worker.",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spitz_tm_tasks_rejected_total",
			Help: "Number of pushed tasks rejected because the pool was full.",
		}),
	}
}

// Serve exposes the default registry's /metrics endpoint on addr until
// ctx is canceled. A blank addr disables the exporter entirely, so the
// -metrics_addr flag can stay optional.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	nlog.Infof("serving metrics on %s", addr)
	err = srv.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
