package coap

import "net"

// QueueConfirmable enqueues pdu for reliable delivery to dst: it sends the
// first copy immediately, then inserts a send-queue entry due at the
// initial ACK_TIMEOUT (randomized by ACK_RANDOM_FACTOR) so RunScheduler
// retransmits it if no matching ACK/RST arrives. sensor tags the payload
// for the retransmit-by-type counters; reg pins an Observe registration
// for the duration the notification is in flight (nil for ordinary
// responses/requests).
func (c *Context) QueueConfirmable(pdu *PDU, dst *net.UDPAddr, sensor SensorType, reg *Registration) (TransactionID, error) {
	if pdu.Type != TypeCON {
		return InvalidTransactionID, ErrNoTransactionID
	}
	if err := c.sendPDU(pdu, dst, nil); err != nil {
		return InvalidTransactionID, err
	}

	tid := TransactionHash(dst, pdu.MsgID)
	now := c.Clock.Now()
	timeout := c.initialTimeout()

	entry := &sendEntry{
		pdu:     pdu,
		dst:     dst,
		tid:     tid,
		t:       now + timeout,
		timeout: timeout,
		sensor:  sensor,
		reg:     reg,
	}
	if reg != nil {
		reg.Checkout()
	}
	c.sendQ.Insert(entry)
	return tid, nil
}

// initialTimeout realizes ACK_TIMEOUT * random(1, ACK_RANDOM_FACTOR) in
// ticks: a randomized backoff start, not a fixed one, so a burst of
// confirmable sends doesn't retransmit in lockstep.
func (c *Context) initialTimeout() Tick {
	factor := 1 + c.rng.Float64()*(c.AckRandomFactor-1)
	return Tick(float64(c.AckTimeout) * factor)
}

// CancelByTID removes and returns the outstanding send matching tid, for
// the dispatcher to call once a matching ACK/RST has been processed. The
// caller is responsible for releasing any pinned registration, via
// AckNotification followed by Release, or via FailedNotify, as appropriate.
func (c *Context) CancelByTID(tid TransactionID) *sendEntry {
	return c.sendQ.RemoveByTID(tid)
}

// RunScheduler pops every send-queue entry due at or before now and either
// retransmits it (doubling its timeout, per exponential backoff) or, once
// MaxRetransmit copies have already gone out, reports exhaustion: releases
// any pinned registration through FailedNotify and bumps the
// RetransmitExhausted counter. It returns the number of entries it acted
// on, for callers that want to log activity.
func (c *Context) RunScheduler(now Tick) int {
	acted := 0
	for {
		e := c.sendQ.PeekDue(now)
		if e == nil {
			break
		}
		c.sendQ.PopFront()
		acted++

		if e.retransmitCnt >= c.MaxRetransmit {
			c.Counters.RetransmitExhausted.Inc()
			if e.reg != nil {
				FailedNotify(c, e.reg)
			}
			continue
		}

		sensor := e.sensor
		if sensor == SensorDatapoint {
			sensor = SensorRetransmittedDatapoint
		}

		if err := c.sendPDU(e.pdu, e.dst, e); err == nil {
			c.Counters.retransmit(sensor)
		}

		e.retransmitCnt++
		e.sensor = sensor
		e.timeout *= 2
		e.t = now + e.timeout
		c.sendQ.Insert(e)
	}
	return acted
}
