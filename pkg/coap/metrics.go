package coap

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector exposes a Context's Counters as a Prometheus collector.
// It is a pull-model snapshot: Collect reads the atomic counters at scrape
// time, never holding the engine's loop state hostage to a slow scraper.
type MetricsCollector struct {
	ctx *Context

	udpOctets    *prometheus.Desc
	udpPackets   *prometheus.Desc
	packetsByType *prometheus.Desc
	retransmits  *prometheus.Desc
	duplicates   *prometheus.Desc
	exhausted    *prometheus.Desc
	retransmitBySensor *prometheus.Desc
}

// NewMetricsCollector wraps ctx's Counters for registration with a
// prometheus.Registry.
func NewMetricsCollector(ctx *Context) *MetricsCollector {
	return &MetricsCollector{
		ctx: ctx,
		udpOctets: prometheus.NewDesc(
			"coap_udp_octets_total", "UDP bytes transferred.",
			[]string{"direction"}, nil),
		udpPackets: prometheus.NewDesc(
			"coap_udp_packets_total", "UDP datagrams transferred.",
			[]string{"direction"}, nil),
		packetsByType: prometheus.NewDesc(
			"coap_packets_by_type_total", "CoAP datagrams by message type and direction.",
			[]string{"direction", "type"}, nil),
		retransmits: prometheus.NewDesc(
			"coap_retransmits_total", "Confirmable messages retransmitted.", nil, nil),
		duplicates: prometheus.NewDesc(
			"coap_duplicates_total", "Duplicate requests suppressed.", nil, nil),
		exhausted: prometheus.NewDesc(
			"coap_retransmit_exhausted_total", "Confirmable sends that exhausted MaxRetransmit without an ACK.", nil, nil),
		retransmitBySensor: prometheus.NewDesc(
			"coap_retransmits_by_sensor_total", "Retransmits broken down by payload sensor type.",
			[]string{"sensor"}, nil),
	}
}

func (m *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.udpOctets
	ch <- m.udpPackets
	ch <- m.packetsByType
	ch <- m.retransmits
	ch <- m.duplicates
	ch <- m.exhausted
	ch <- m.retransmitBySensor
}

func (m *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c := m.ctx.Counters

	ch <- prometheus.MustNewConstMetric(m.udpOctets, prometheus.CounterValue, float64(c.UDPInOctets.Load()), "in")
	ch <- prometheus.MustNewConstMetric(m.udpOctets, prometheus.CounterValue, float64(c.UDPOutOctets.Load()), "out")
	ch <- prometheus.MustNewConstMetric(m.udpPackets, prometheus.CounterValue, float64(c.UDPInPackets.Load()), "in")
	ch <- prometheus.MustNewConstMetric(m.udpPackets, prometheus.CounterValue, float64(c.UDPOutPackets.Load()), "out")

	for t := TypeCON; t <= TypeRST; t++ {
		ch <- prometheus.MustNewConstMetric(m.packetsByType, prometheus.CounterValue, float64(c.InByType[t].Load()), "in", t.String())
		ch <- prometheus.MustNewConstMetric(m.packetsByType, prometheus.CounterValue, float64(c.OutByType[t].Load()), "out", t.String())
	}

	ch <- prometheus.MustNewConstMetric(m.retransmits, prometheus.CounterValue, float64(c.Retransmits.Load()))
	ch <- prometheus.MustNewConstMetric(m.duplicates, prometheus.CounterValue, float64(c.Duplicates.Load()))
	ch <- prometheus.MustNewConstMetric(m.exhausted, prometheus.CounterValue, float64(c.RetransmitExhausted.Load()))

	for sensor, n := range c.RetransmitBySensor() {
		ch <- prometheus.MustNewConstMetric(m.retransmitBySensor, prometheus.CounterValue, float64(n), sensorName(sensor))
	}
}

func sensorName(s SensorType) string {
	switch s {
	case SensorDatapoint:
		return "datapoint"
	case SensorRetransmittedDatapoint:
		return "retransmitted_datapoint"
	default:
		return "unknown"
	}
}
