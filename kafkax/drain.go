package kafkax

import "github.com/shawntao1011/kafkax/ring"

// Drain pops up to limit events across every worker's event ring and
// returns them. It must never be called concurrently with itself — the
// host is assumed single-threaded with respect to Drain/Bind/Subscribe,
// per spec.md §5.
//
// Drain spreads its starting point across workers round-robin (fair drain
// bias) and, once it has scanned every ring, disarms the notify descriptor
// and then re-fires it if any ring still has data.
//
// disarm must happen before the rescan, not after: a worker's fire() and
// Drain's own end-of-pass decision both touch the same armed flag, and if
// Drain disarmed only after finding nothing left, a worker that pushed and
// fired in between (losing its own CAS race against an already-armed flag
// from earlier in this same pass) could see its write coalesced away with
// no corresponding rescan ever seeing the new data. Disarming first means
// any such worker's later fire() either lands (CAS succeeds against the
// fresh false) or is redundant with the fire() Drain itself performs below
// after observing the same data left over in the rescan.
func (c *Core) Drain(limit int) []Event {
	if len(c.evtRings) == 0 || limit <= 0 {
		return nil
	}

	out := make([]Event, 0, limit)
	n := len(c.evtRings)
	start := int(c.drainRR.Add(1)-1) % n

	for i := 0; i < n && len(out) < limit; i++ {
		idx := (start + i) % n
		drainOneRing(c.evtRings[idx], &out, limit)
	}

	c.notifier.disarm()

	anyLeft := false
	for _, r := range c.evtRings {
		if r.Size() > 0 {
			anyLeft = true
			break
		}
	}

	if anyLeft {
		c.notifier.fire()
	}

	return out
}

func drainOneRing(r *ring.Ring[*Event], out *[]Event, limit int) {
	for len(*out) < limit {
		ev, ok := r.TryPop()
		if !ok {
			return
		}
		*out = append(*out, *ev)
	}
}

// NotifyFD returns the non-blocking, close-on-exec readiness descriptor
// the host should poll for readability. A readable edge means "at least
// one event is available since the last Drain", coalesced per spec.md §6.
func (c *Core) NotifyFD() int {
	return c.notifier.FD()
}
