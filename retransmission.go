package rudp

import "time"

// resendThreshold is how long an unacknowledged reliable packet may wait
// before the sweep retransmits it. One smoothed RTT, floored so an unmeasured
// or very small estimate does not flood the wire.
func resendThreshold(rtt time.Duration) time.Duration {
	if rtt < RESEND_FLOOR {
		return RESEND_FLOOR
	}
	return rtt
}

// sweep returns every retained packet whose last transmission is older than
// threshold. Each entry's send time is refreshed so a single sweep resends a
// packet at most once.
func (a *acknowledgementHandler) sweep(now time.Time, threshold time.Duration) []*sentPacket {
	var due []*sentPacket
	for i := range a.sent {
		slot := &a.sent[i]
		if slot.inUse && now.Sub(slot.sendTime) >= threshold {
			slot.sendTime = now
			slot.retransmits++
			due = append(due, slot)
		}
	}
	return due
}
