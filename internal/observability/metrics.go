package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	codecPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "codec",
			Name:      "packets_total",
			Help:      "Complete frames decoded, by packet type.",
		},
		[]string{"transport", "type"},
	)
	codecResyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "codec",
			Name:      "resync_bytes_total",
			Help:      "Bytes discarded while resynchronizing the frame stream.",
		},
		[]string{"transport"},
	)
	codecFeedRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "codec",
			Name:      "feed_rejected_total",
			Help:      "Feeds refused because the codec buffer was full.",
		},
		[]string{"transport"},
	)
	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Sessions entered the Connected state.",
		},
		[]string{"transport"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Sessions torn down, by cause.",
		},
		[]string{"transport", "cause"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pusherctl",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently in the Connected state.",
		},
	)
	busPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Events accepted onto the bus, by kind.",
		},
		[]string{"kind"},
	)
	busDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pusherctl",
			Subsystem: "bus",
			Name:      "queue_depth",
			Help:      "Events buffered on the bus, sampled at publish and drain.",
		},
	)
	busDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Events lost to the overflow policy, by kind.",
		},
		[]string{"kind"},
	)
	routerDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pusherctl",
			Subsystem: "router",
			Name:      "dispatched_total",
			Help:      "Command dispatches, by outcome code.",
		},
		[]string{"code"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			codecPackets, codecResyncs, codecFeedRejected,
			sessionsStarted, sessionsClosed, sessionsActive,
			busPublished, busDepth, busDropped,
			routerDispatched,
		)
	})
}

func RecordPacket(transport, packetType string) {
	RegisterMetrics()
	codecPackets.WithLabelValues(transport, packetType).Inc()
}

func RecordResyncBytes(transport string, n uint64) {
	RegisterMetrics()
	codecResyncs.WithLabelValues(transport).Add(float64(n))
}

func RecordFeedRejected(transport string) {
	RegisterMetrics()
	codecFeedRejected.WithLabelValues(transport).Inc()
}

func RecordSessionStart(transport string) {
	RegisterMetrics()
	sessionsStarted.WithLabelValues(transport).Inc()
	sessionsActive.Inc()
}

func RecordSessionClose(transport, cause string) {
	RegisterMetrics()
	sessionsClosed.WithLabelValues(transport, cause).Inc()
	sessionsActive.Dec()
}

func RecordBusPublish(kind string) {
	RegisterMetrics()
	busPublished.WithLabelValues(kind).Inc()
}

func RecordBusDepth(depth int) {
	RegisterMetrics()
	busDepth.Set(float64(depth))
}

func RecordBusDrop(kind string) {
	RegisterMetrics()
	busDropped.WithLabelValues(kind).Inc()
}

func RecordDispatch(code string) {
	RegisterMetrics()
	routerDispatched.WithLabelValues(code).Inc()
}
