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

package runmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the husako-specific metric set: one instance per CLI
// invocation, registered against its own registry (never
// prometheus.DefaultRegisterer) so nothing leaks across invocations.
type Collector struct {
	registry *prometheus.Registry

	generateDuration prometheus.Histogram
	generateFailures prometheus.Counter
	renderDuration   prometheus.Histogram
	renderFailures   prometheus.Counter
	documentsEmitted prometheus.Counter
}

// New builds a Collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		generateDuration: promautoHistogram(registry, "husako_generate_duration_seconds",
			"Wall-clock duration of the generate pipeline."),
		generateFailures: promautoCounter(registry, "husako_generate_failures_total",
			"Count of generate invocations that returned an error."),
		renderDuration: promautoHistogram(registry, "husako_render_duration_seconds",
			"Wall-clock duration of one render invocation."),
		renderFailures: promautoCounter(registry, "husako_render_failures_total",
			"Count of render invocations that returned an error."),
		documentsEmitted: promautoCounter(registry, "husako_documents_emitted_total",
			"Count of top-level documents captured by husako.build(...) across renders."),
	}
}

// ObserveGenerate records one generate invocation's duration and
// outcome.
func (c *Collector) ObserveGenerate(d time.Duration, err error) {
	c.generateDuration.Observe(d.Seconds())
	if err != nil {
		c.generateFailures.Inc()
	}
}

// ObserveRender records one render invocation's duration and outcome.
func (c *Collector) ObserveRender(d time.Duration, err error) {
	c.renderDuration.Observe(d.Seconds())
	if err != nil {
		c.renderFailures.Inc()
	}
}

// AddDocuments adds n to the documents-emitted counter.
func (c *Collector) AddDocuments(n int) {
	if n > 0 {
		c.documentsEmitted.Add(float64(n))
	}
}

// Serve exposes the collector's registry on addr until ctx is
// cancelled. Callers typically run this in a goroutine alongside the
// generate/render work it is measuring.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	return newServer(addr, c.registry).start(ctx)
}

func promautoCounter(r prometheus.Registerer, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	r.MustRegister(c)
	return c
}

func promautoHistogram(r prometheus.Registerer, name, help string) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: prometheus.DefBuckets})
	r.MustRegister(h)
	return h
}
