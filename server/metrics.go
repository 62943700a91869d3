package server

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_connected_clients",
		Help: "Number of currently connected clients",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_commands_total",
		Help: "Total commands processed by verb",
	}, []string{"verb"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatd_command_duration_seconds",
		Help:    "Time to process each command verb",
		Buckets: prometheus.DefBuckets,
	}, []string{"verb"})

	PushesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_pushes_delivered_total",
		Help: "Messages pushed to an online recipient",
	})

	PushesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_pushes_dropped_total",
		Help: "Pushes dropped because the recipient queue was full",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(PushesDelivered)
	prometheus.MustRegister(PushesDropped)
}
