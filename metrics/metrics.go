package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p"
	"github.com/996BC/btccrawler/p2p/peer"
)

const namespace = "btccrawler"

// Recorder exports the crawl progress, it is registered as the crawler observer
type Recorder struct {
	reg *prometheus.Registry

	contacts   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	peersFound prometheus.Counter
	pending    prometheus.Gauge
	discovered prometheus.Gauge
	inFlight   prometheus.Gauge
	batches    prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),

		contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_total",
			Help:      "Total contacted peers by handshake result",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_failures_total",
			Help:      "Total failed contacts by reason",
		}, []string{"reason"}),
		peersFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advertised_addresses_total",
			Help:      "Total addresses received in addr messages, duplicates included",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontier",
			Name:      "pending",
			Help:      "Addresses waiting to be contacted",
		}),
		discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontier",
			Name:      "discovered",
			Help:      "Distinct addresses discovered by the current crawl",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contacts_in_flight",
			Help:      "Contacts dispatched and not finished yet",
		}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of one crawl iteration",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}

	r.reg.MustRegister(
		r.contacts,
		r.failures,
		r.peersFound,
		r.pending,
		r.discovered,
		r.inFlight,
		r.batches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the /metrics endpoint
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) OnDispatch(addr peer.Address) {
	r.inFlight.Inc()
}

func (r *Recorder) OnContact(result *p2p.Result) {
	r.inFlight.Dec()
	r.peersFound.Add(float64(len(result.Peers)))
	if result.Handshaked {
		r.contacts.WithLabelValues("success").Inc()
		return
	}
	r.contacts.WithLabelValues("failure").Inc()
	r.failures.WithLabelValues(result.Reason()).Inc()
}

func (r *Recorder) OnBatch(batch crawler.BatchStats, pending int, discovered int) {
	r.batches.Observe(batch.Elapsed.Seconds())
	r.pending.Set(float64(pending))
	r.discovered.Set(float64(discovered))
}
