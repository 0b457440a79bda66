// Package metrics exposes Prometheus instrumentation for queue runs. The
// recorder observes queue lifecycle events; it never blocks or mutates the
// queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskrun/internal/queue"
)

type Recorder struct {
	reg *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	retriesTotal prometheus.Counter
	batchesTotal prometheus.Counter
	runsTotal    prometheus.Counter
	tasksRunning prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrun_tasks_total",
			Help: "Tasks finished, by outcome.",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrun_retries_total",
			Help: "Re-attempts beyond each task's first attempt.",
		}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrun_batches_total",
			Help: "Batches dispatched to the executor.",
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrun_runs_total",
			Help: "Queue runs that completed.",
		}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskrun_tasks_running",
			Help: "Attempts currently in flight.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.tasksTotal, r.retriesTotal, r.batchesTotal, r.runsTotal, r.tasksRunning,
	)
	return r
}

// Handler serves the registry, for mounting at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Attach subscribes the recorder to a queue's lifecycle events.
func Attach[T any](r *Recorder, q *queue.Queue[T]) {
	q.On(queue.EventProgress, func(e queue.Event) {
		d := e.Data.(queue.ProgressData)
		r.tasksRunning.Set(float64(d.Running))
	})
	q.On(queue.EventBatchComplete, func(e queue.Event) {
		d := e.Data.(queue.BatchCompleteData[T])
		r.batchesTotal.Inc()
		for _, res := range d.Results {
			outcome := "success"
			if !res.OK {
				outcome = "failure"
				if res.TimedOut {
					outcome = "timeout"
				}
			}
			r.tasksTotal.WithLabelValues(outcome).Inc()
			if res.Attempts > 1 {
				r.retriesTotal.Add(float64(res.Attempts - 1))
			}
		}
	})
	q.On(queue.EventComplete, func(queue.Event) {
		r.runsTotal.Inc()
		r.tasksRunning.Set(0)
	})
}
