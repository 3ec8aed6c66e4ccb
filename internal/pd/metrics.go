package pd

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelComID = "com_id"
	LabelIface = "iface"
)

var (
	metricSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_sends_total",
			Help: "Count of PD frames sent, by comId",
		},
		[]string{LabelComID},
	)

	metricRecvTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_recv_total",
			Help: "Count of PD frames accepted, by comId",
		},
		[]string{LabelComID},
	)

	metricCrcErrTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_crc_errors_total",
			Help: "Count of frames dropped for a bad checksum",
		},
		[]string{LabelIface},
	)

	metricWireErrTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_wire_errors_total",
			Help: "Count of frames dropped for malformed wire layout",
		},
		[]string{LabelIface},
	)

	metricTopoErrTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_topo_errors_total",
			Help: "Count of frames dropped for a stale topology counter",
		},
		[]string{LabelComID},
	)

	metricNoSubsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_no_subscriber_total",
			Help: "Count of frames received for a comId with no matching subscription",
		},
		[]string{LabelComID},
	)

	metricMissedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_missed_total",
			Help: "Count of missed sequence numbers detected by the sequence tracker, by comId",
		},
		[]string{LabelComID},
	)

	metricTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trdp_pd_timeouts_total",
			Help: "Count of subscriptions that aged past their timeout",
		},
		[]string{LabelComID},
	)

	metricSendQueueLen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trdp_pd_send_queue_len",
			Help: "Current number of published elements in the send queue",
		},
	)

	metricRecvQueueLen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trdp_pd_recv_queue_len",
			Help: "Current number of subscribed elements in the receive queue",
		},
	)
)

func emitSendMetrics(comID uint32) {
	metricSendsTotal.WithLabelValues(comIDLabel(comID)).Inc()
}

func emitRecvMetrics(comID uint32) {
	metricRecvTotal.WithLabelValues(comIDLabel(comID)).Inc()
}

func emitMissedMetrics(comID uint32, missed uint32) {
	if missed > 0 {
		metricMissedTotal.WithLabelValues(comIDLabel(comID)).Add(float64(missed))
	}
}

func emitTimeoutMetrics(comID uint32) {
	metricTimeoutsTotal.WithLabelValues(comIDLabel(comID)).Inc()
}

func emitNoSubsMetrics(comID uint32) {
	metricNoSubsTotal.WithLabelValues(comIDLabel(comID)).Inc()
}

func emitTopoErrMetrics(comID uint32) {
	metricTopoErrTotal.WithLabelValues(comIDLabel(comID)).Inc()
}

func emitCrcErrMetrics(iface string) {
	metricCrcErrTotal.WithLabelValues(iface).Inc()
}

func emitWireErrMetrics(iface string) {
	metricWireErrTotal.WithLabelValues(iface).Inc()
}

func comIDLabel(comID uint32) string {
	return strconv.FormatUint(uint64(comID), 10)
}
