// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runmetrics serves Prometheus metrics for one husako invocation
// when `generate` or `render` is given --metrics-addr. Unlike the controller this is adapted from, there is no
// long-running process to instrument continuously: a Collector is
// built fresh per `generate`/`render` invocation and its registry is
// discarded with it, so a caller opting into --metrics-addr gets a
// scrape-once-and-exit surface rather than a standing exporter.
package runmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// server serves one Collector's registry over HTTP until ctx is
// cancelled.
type server struct {
	addr     string
	registry prometheus.Gatherer
	http     *http.Server
	logger   *slog.Logger
}

func newServer(addr string, registry prometheus.Gatherer) *server {
	s := &server{
		addr:     addr,
		registry: registry,
		logger:   slog.Default().With("component", "metrics-server"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// start runs the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully with a bounded timeout.
func (s *server) start(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting metrics server", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	}
}
