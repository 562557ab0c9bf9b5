package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_alerts_total",
			Help: "Notifications raised by live sessions, by kind (unread, chime)",
		},
		[]string{"kind"},
	)

	subscriptionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_subscription_errors_total",
			Help: "Failed snapshot loads seen by live sessions, by stream",
		},
		[]string{"stream"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Number of running chat sessions",
		},
	)
)
