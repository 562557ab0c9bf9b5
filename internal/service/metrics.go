package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted, by visibility and content kind",
		},
		[]string{"visibility", "kind"},
	)

	ledgerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_access_transitions_total",
			Help: "Access-request ledger transitions, by action",
		},
		[]string{"action"},
	)

	uploadFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_upload_failures_total",
			Help: "Image uploads rejected by the image host",
		},
	)
)
