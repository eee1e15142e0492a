package svc

import (
	"peerlinker/common/discovery"

	"github.com/zeromicro/go-zero/core/metric"
)

const (
	metricsNamespace = "peerlinker"
	metricsSubsystem = "linker"
)

var (
	metricHandshakeCounter metric.CounterVec
	metricTrafficCounter   metric.CounterVec
	metricAnnounceCounter  metric.CounterVec
	metricKnownGoodPeers   metric.GaugeVec
)

func init() {
	metricHandshakeCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "handshake",
		Labels:    []string{"result"},
	})
	metricTrafficCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "traffic",
		Labels:    []string{"type"},
	})
	metricAnnounceCounter = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "announce",
		Labels:    []string{"result"},
	})
	metricKnownGoodPeers = metric.NewGaugeVec(&metric.GaugeVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "known_good_peers",
		Labels:    []string{"info_hash"},
	})
}

func recordOutcome(o *discovery.Outcome) {
	if o.Accepted {
		metricHandshakeCounter.Inc("accepted")
		return
	}
	metricHandshakeCounter.Inc(o.Reason.String())
}

func recordTraffic(label string, length int) {
	metricTrafficCounter.Add(float64(length), label)
}
