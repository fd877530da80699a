package coap

import (
	"sync"

	"go.uber.org/atomic"
)

// SensorType tags the payload carried by a confirmable transmission, for
// the per-sensor-type retransmit breakdown net.c keeps. A notification's
// sensor type flips from "datapoint" to "retransmitted-datapoint" the
// first time it is resent.
type SensorType uint8

const (
	SensorUnknown SensorType = iota
	SensorDatapoint
	SensorRetransmittedDatapoint
)

// Counters are the read-only observability values exposed to a metrics
// scraper. Writes happen only from the single-threaded event loop;
// go.uber.org/atomic makes them safe to read concurrently without taking
// the engine's loop lock.
type Counters struct {
	UDPInOctets   atomic.Uint64
	UDPOutOctets  atomic.Uint64
	UDPInPackets  atomic.Uint64
	UDPOutPackets atomic.Uint64

	InByType  [4]atomic.Uint64
	OutByType [4]atomic.Uint64

	Retransmits    atomic.Uint64
	Duplicates     atomic.Uint64
	RetransmitExhausted atomic.Uint64

	mu                  sync.Mutex
	retransmitBySensor map[SensorType]uint64
}

func newCounters() *Counters {
	return &Counters{retransmitBySensor: make(map[SensorType]uint64)}
}

func (c *Counters) recvPacket(t Type, n int) {
	c.UDPInOctets.Add(uint64(n))
	c.UDPInPackets.Inc()
	c.InByType[t].Inc()
}

func (c *Counters) sendPacket(t Type, n int) {
	c.UDPOutOctets.Add(uint64(n))
	c.UDPOutPackets.Inc()
	c.OutByType[t].Inc()
}

func (c *Counters) retransmit(sensor SensorType) {
	c.Retransmits.Inc()
	c.mu.Lock()
	c.retransmitBySensor[sensor]++
	c.mu.Unlock()
}

// RetransmitBySensor returns a snapshot of the per-sensor-type retransmit
// counts.
func (c *Counters) RetransmitBySensor() map[SensorType]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[SensorType]uint64, len(c.retransmitBySensor))
	for k, v := range c.retransmitBySensor {
		out[k] = v
	}
	return out
}
