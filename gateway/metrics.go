package gateway

import metrics "github.com/rcrowley/go-metrics"

// Metrics is the per-listener counter set a Worker updates after every
// response the application produces (the 400 and 500 responses the worker
// writes itself are not counted), grounded on cloudfoundry-gorouter/varz's use of
// github.com/rcrowley/go-metrics for request-rate and response-class
// counters plus a latency histogram.
type Metrics struct {
	Requests     metrics.Counter
	Responses2xx metrics.Counter
	Responses3xx metrics.Counter
	Responses4xx metrics.Counter
	Responses5xx metrics.Counter
	ResponsesXxx metrics.Counter
	Latency      metrics.Histogram
}

// NewMetrics allocates an unregistered counter set (callers may register
// it with a metrics.Registry if they want it exported).
func NewMetrics() *Metrics {
	return &Metrics{
		Requests:     metrics.NewCounter(),
		Responses2xx: metrics.NewCounter(),
		Responses3xx: metrics.NewCounter(),
		Responses4xx: metrics.NewCounter(),
		Responses5xx: metrics.NewCounter(),
		ResponsesXxx: metrics.NewCounter(),
		Latency:      metrics.NewHistogram(metrics.NewExpDecaySample(1028, 0.015)),
	}
}

// recordResponse tallies one completed request/response cycle.
func (m *Metrics) recordResponse(status string, latencyNanos int64) {
	if m == nil {
		return
	}
	m.Requests.Inc(1)
	m.Latency.Update(latencyNanos)

	class := byte('x')
	if len(status) > 0 {
		class = status[0]
	}
	switch class {
	case '2':
		m.Responses2xx.Inc(1)
	case '3':
		m.Responses3xx.Inc(1)
	case '4':
		m.Responses4xx.Inc(1)
	case '5':
		m.Responses5xx.Inc(1)
	default:
		m.ResponsesXxx.Inc(1)
	}
}
