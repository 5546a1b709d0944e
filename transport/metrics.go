package transport

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the transport layer's prometheus collectors, created and
// registered once per ProtocolDispatcher. The metric names are fixed, so a
// second dispatcher registering on the same registerer makes MustRegister
// panic; a nil registerer skips registration.
type metrics struct {
	channelsOpened  *prometheus.CounterVec
	channelsClosed  *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	dialFailures    *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		channelsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k2go",
			Subsystem: "transport",
			Name:      "channels_opened_total",
			Help:      "Channels successfully dialed, by scheme.",
		}, []string{"scheme"}),
		channelsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k2go",
			Subsystem: "transport",
			Name:      "channels_closed_total",
			Help:      "Channels closed or failed, by scheme.",
		}, []string{"scheme"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k2go",
			Subsystem: "transport",
			Name:      "messages_sent_total",
			Help:      "Messages sent, by scheme.",
		}, []string{"scheme"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k2go",
			Subsystem: "transport",
			Name:      "bytes_sent_total",
			Help:      "Payload bytes sent, by scheme.",
		}, []string{"scheme"}),
		dialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k2go",
			Subsystem: "transport",
			Name:      "dial_failures_total",
			Help:      "Dial attempts that returned an error, by scheme.",
		}, []string{"scheme"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.channelsOpened, m.channelsClosed, m.messagesSent, m.bytesSent, m.dialFailures)
	}
	return m
}
