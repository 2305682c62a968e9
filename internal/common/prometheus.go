package common

import "github.com/prometheus/client_golang/prometheus"

const (
	HTTPRequestTotal           = "http_requests_total"
	HTTPRequestDurationSeconds = "http_request_duration_seconds"
	DropDrawTotal              = "drop_draws_total"
	DropPayoutTotal            = "drop_payouts_total"
)

var (
	PromCounters = map[string]*prometheus.CounterVec{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestTotal,
			Help: "Count of all HTTP requests",
		}, []string{"path", "code"}),
		DropDrawTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DropDrawTotal,
			Help: "Count of draws by outcome",
		}, []string{"outcome"}),
		DropPayoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DropPayoutTotal,
			Help: "Count of payout attempts by kind and resulting status",
		}, []string{"kind", "status"}),
	}

	PromHistograms = map[string]*prometheus.HistogramVec{
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: HTTPRequestDurationSeconds,
			Help: "Duration of all HTTP requests",
		}, []string{"path", "code"}),
	}
)

// PromCollectors returns every collector declared above.
func PromCollectors() []prometheus.Collector {
	var result []prometheus.Collector
	for _, c := range PromCounters {
		result = append(result, c)
	}

	for _, h := range PromHistograms {
		result = append(result, h)
	}

	return result
}
