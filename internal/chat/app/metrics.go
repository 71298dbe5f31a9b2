package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_appended_total",
		Help:      "Messages stored in the message log.",
	})
	sendsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "sends_rejected_total",
		Help:      "Append calls rejected, by error kind.",
	}, []string{"kind"})
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "hub_active_subscriptions",
		Help:      "Open hub subscriptions on this node.",
	})
	hubEventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "hub_events_delivered_total",
		Help:      "Events fanned out to local subscribers, by kind.",
	}, []string{"kind"})
	hubEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "hub_events_dropped_total",
		Help:      "Events not delivered, by reason.",
	}, []string{"reason"})
	hubEventsLate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "hub_events_late_total",
		Help:      "Message events delivered after later seqs of the same room.",
	})
	heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "presence_heartbeats_total",
		Help:      "Heartbeats received, by result.",
	}, []string{"result"})
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "websocket_connections",
		Help:      "Open websocket connections on this node.",
	})
)
