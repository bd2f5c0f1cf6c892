package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reg = prometheus.NewRegistry()

	WSConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_connections_total", Help: "Total WS connections accepted",
	})
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total", Help: "Inbound events by type",
	}, []string{"type"})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users", Help: "Identities currently present",
	})

	MessagesSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_saved_total", Help: "Messages persisted",
	})
	MessageSaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_message_save_failures_total", Help: "Message persistence failures",
	})
	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_dropped_total", Help: "Messages dropped before persistence",
	}, []string{"reason"})

	HistoryReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_history_replays_total", Help: "History replays served on join",
	})
	HistoryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_history_failures_total", Help: "History query failures",
	})

	SignalsRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_signals_relayed_total", Help: "Signaling events relayed by type",
	}, []string{"type"})
	SignalsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_signals_dropped_total", Help: "Signaling events dropped by type and reason",
	}, []string{"type", "reason"})

	WSFrameSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_ws_frame_bytes",
		Help:    "WebSocket frame sizes",
		Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
	}, []string{"dir"})
	WSRTTSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_ws_rtt_seconds",
		Help:    "WebSocket RTT (derived from ping/pong timestamps)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	reg.MustRegister(
		WSConnections, Events, OnlineUsers,
		MessagesSaved, MessageSaveFailures, MessagesDropped,
		HistoryReplays, HistoryFailures,
		SignalsRelayed, SignalsDropped,
		WSFrameSize, WSRTTSeconds,
	)
}

func Handler() http.Handler { return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}) }

func SetOnline(n int) { OnlineUsers.Set(float64(n)) }
