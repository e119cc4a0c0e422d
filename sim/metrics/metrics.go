// Package metrics exports finished runs as Prometheus metrics.
//
// Metrics:
//
//   - retrofit_events_total{run,kind}: event log records per kind
//   - retrofit_wagons_rejected_total{run,reason}: rejections per reason
//   - retrofit_duration_ticks{run}: retrofit start to completion
//   - retrofit_turnaround_ticks{run}: arrival to parking
//   - retrofit_track_peak_metres{run,track}: highest occupancy per track
//   - retrofit_locomotive_busy_ratio{run,locomotive}: share of the run assigned
//   - retrofit_station_utilization_ratio{run,workshop}: busy station share
//   - retrofit_clock_ticks{run}: virtual time the run ended at
//
// The simulator has no long-running process to scrape, so a Collector owns
// a private registry and is written out in the node-exporter textfile
// format once the runs are done.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/retrofit-sim/retrofit-sim/sim/trace"
)

// Collector holds the metrics of one or more runs, told apart by the run
// label. Observe is safe to call from concurrent runs.
type Collector struct {
	registry *prometheus.Registry

	events    *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	retrofit  *prometheus.HistogramVec
	turnround *prometheus.HistogramVec

	trackPeak   *prometheus.GaugeVec
	locoBusy    *prometheus.GaugeVec
	stationUtil *prometheus.GaugeVec
	clock       *prometheus.GaugeVec
}

// tickBuckets covers retrofit and turnaround times from a few ticks up to
// several thousand.
var tickBuckets = prometheus.ExponentialBuckets(5, 2, 12)

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrofit_events_total",
			Help: "Event log records by kind",
		}, []string{"run", "kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrofit_wagons_rejected_total",
			Help: "Wagons rejected at arrival by reason",
		}, []string{"run", "reason"}),
		retrofit: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retrofit_duration_ticks",
			Help:    "Retrofit time per wagon in ticks",
			Buckets: tickBuckets,
		}, []string{"run"}),
		turnround: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retrofit_turnaround_ticks",
			Help:    "Arrival to parking time per wagon in ticks",
			Buckets: tickBuckets,
		}, []string{"run"}),
		trackPeak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retrofit_track_peak_metres",
			Help: "Highest occupied length per track",
		}, []string{"run", "track"}),
		locoBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retrofit_locomotive_busy_ratio",
			Help: "Fraction of the run a locomotive was assigned",
		}, []string{"run", "locomotive"}),
		stationUtil: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retrofit_station_utilization_ratio",
			Help: "Busy station-ticks over available station-ticks per workshop",
		}, []string{"run", "workshop"}),
		clock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "retrofit_clock_ticks",
			Help: "Virtual time the run ended at",
		}, []string{"run"}),
	}
	c.registry.MustRegister(
		c.events, c.rejected, c.retrofit, c.turnround,
		c.trackPeak, c.locoBusy, c.stationUtil, c.clock,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records one finished run.
func (c *Collector) Observe(run string, records []trace.Record, summary trace.Summary) {
	arrived := map[string]int64{}
	started := map[string]int64{}
	for _, r := range records {
		c.events.WithLabelValues(run, string(r.Kind)).Inc()
		switch r.Kind {
		case trace.WagonArrived:
			arrived[r.Wagon] = r.Time
		case trace.WagonRejected:
			c.rejected.WithLabelValues(run, r.Detail).Inc()
		case trace.WagonRetrofitStarted:
			started[r.Wagon] = r.Time
		case trace.WagonRetrofitCompleted:
			if t, ok := started[r.Wagon]; ok {
				c.retrofit.WithLabelValues(run).Observe(float64(r.Time - t))
			}
		case trace.WagonParked:
			if t, ok := arrived[r.Wagon]; ok {
				c.turnround.WithLabelValues(run).Observe(float64(r.Time - t))
			}
		}
	}
	for id, v := range summary.TrackPeak {
		c.trackPeak.WithLabelValues(run, id).Set(v)
	}
	for id, v := range summary.LocomotiveBusy {
		c.locoBusy.WithLabelValues(run, id).Set(v)
	}
	for id, v := range summary.StationUtilization {
		c.stationUtil.WithLabelValues(run, id).Set(v)
	}
	c.clock.WithLabelValues(run).Set(float64(summary.Clock))
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
