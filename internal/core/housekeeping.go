package core

import "time"

/*-------------------------------------------------------------------
 *
 * Name:	Housekeeping
 *
 * Purpose:	The four reserved per-outer-cycle tasks: loop-time
 *		profiling, configuration-pin poll, busy-timer decrement,
 *		and the stuck-bank sweep.
 *
 *--------------------------------------------------------------*/

// Housekeeping runs the four reserved tasks once per outer cycle
// (two scheduler rounds).
type Housekeeping struct {
	Loop loopTimeStats

	sweepCounter     int
	pendingEvict     int // channel index awaiting eviction next sweep, or -1
	pendingEvictBank int // the specific bank index that looked stuck, so a later sweep can't evict a different sentence the channel has since started
	timerDecrement   uint16
}

// NewHousekeeping returns a Housekeeping with the busy-timer
// decrement sized so a channel's busy timer decays to zero in roughly
// 2.5s given one TimerStep call per outer cycle.
func NewHousekeeping(outerCyclesFor2_5s int) *Housekeeping {
	if outerCyclesFor2_5s <= 0 {
		outerCyclesFor2_5s = 1
	}
	dec := timerHigh / outerCyclesFor2_5s
	if dec < 1 {
		dec = 1
	}
	return &Housekeeping{pendingEvict: -1, timerDecrement: uint16(dec)}
}

// ObserveLoopTime updates the running min/max used by the diagnostic
// 'G' dialogue command.
func (h *Housekeeping) ObserveLoopTime(d time.Duration) {
	h.Loop.observe(d)
}

// PollConfigPin checks the configuration pin and, if asserted, hands
// control to enter (which runs the configuration dialogue to
// completion and returns once the pin is released).
func (h *Housekeeping) PollConfigPin(asserted bool, enter func()) {
	if asserted {
		enter()
	}
}

// TimerStep decrements the busy timer for a group of channels. The
// real firmware does four channels per slot, two slots per outer
// cycle; callers should invoke this once per slot with the
// corresponding quarter/half of the channel table.
func (h *Housekeeping) TimerStep(group []*Channel) {
	for _, ch := range group {
		if ch.Timer == 0 {
			continue
		}
		if ch.Timer <= h.timerDecrement {
			ch.Timer = 0
		} else {
			ch.Timer -= h.timerDecrement
		}
	}
}

// StuckSweep runs once per outer cycle; every stuckSweepPeriod calls
// it performs the actual sweep logic, otherwise it is a no-op, so the
// caller can invoke it unconditionally on every cycle rather than
// pre-dividing the count itself. round is the scheduler's current
// round counter, used to avoid evicting a bank that was written to in
// the very round the sweep runs.
func (h *Housekeeping) StuckSweep(channels []*Channel, assembler *Assembler, counters *Counters, round uint64) {
	h.sweepCounter++
	if h.sweepCounter < stuckSweepPeriod {
		return
	}
	h.sweepCounter = 0
	h.doSweep(channels, assembler, counters, round)
}

func (h *Housekeeping) doSweep(channels []*Channel, assembler *Assembler, counters *Counters, round uint64) {
	// Free whatever was flagged as stale at the previous sweep, but
	// only if it is still in progress, still the same bank (the
	// channel has not since finished that sentence and started a new
	// one on a different bank), and did not just receive a byte this
	// very round. lastWriteRound, not just the witness bitmap, is what
	// catches a sentence that completed and restarted between the two
	// sweeps that flag and then evict a candidate.
	if h.pendingEvict >= 0 {
		ch := channels[h.pendingEvict]
		if ch.state == bankInProgress && ch.bank == h.pendingEvictBank && ch.lastWriteRound != round {
			assembler.StuckSweep(ch)
			bumpSaturating(&counters.Slow)
			counters.flagChannel(ch.Index)
		}
		h.pendingEvict = -1
	}

	// Pick at most one new candidate: in progress, and silent across
	// both of the last two observation windows.
	for _, ch := range channels {
		if ch.state == bankInProgress && !ch.wroteThisWindow && !ch.wrotePrevWindow {
			h.pendingEvict = ch.Index
			h.pendingEvictBank = ch.bank
			break
		}
	}

	for _, ch := range channels {
		ch.wrotePrevWindow = ch.wroteThisWindow
		ch.wroteThisWindow = false
	}
}
