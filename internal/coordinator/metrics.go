// Copyright 2025 Tom Barlow
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

package coordinator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the run/execution counters fluxworkd exposes for scraping
// (§9 domain stack). Registered once per process against registerer; a
// fresh Coordinator built in tests shares the same collectors rather than
// re-registering, which prometheus.MustRegister would otherwise panic on.
type Metrics struct {
	TasksHandled *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	RunsFailed   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// registerMetrics returns the process-wide Metrics, registering the
// collectors against registerer on first use.
func registerMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{
			TasksHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fluxwork",
				Subsystem: "coordinator",
				Name:      "tasks_handled_total",
				Help:      "Coordinator task handlers invoked, labeled by outcome.",
			}, []string{"outcome"}),
			TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fluxwork",
				Subsystem: "coordinator",
				Name:      "task_duration_seconds",
				Help:      "Coordinator task handler wall time.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fluxwork",
				Subsystem: "coordinator",
				Name:      "runs_failed_total",
				Help:      "Runs that ended in status=failed after a handler error.",
			}),
		}
		registerer.MustRegister(m.TasksHandled, m.TaskDuration, m.RunsFailed)
		metrics = m
	})
	return metrics
}
