package core

/*-------------------------------------------------------------------
 *
 * Name:	Assembler
 *
 * Purpose:	Drive the per-channel sentence lifecycle from the first
 *		byte through terminator or failure.
 *
 * Description:	Owns the BankPool, the TxQueue, and the Counters; one
 *		instance serves all eight channels since no two channels
 *		are ever assembling in the same scheduler slot.
 *
 *--------------------------------------------------------------*/

// Assembler drives every channel's sentence lifecycle: pre-allocation
// filtering, byte-by-byte accumulation into a bank, and the failure
// paths (binary, overlong, suppressed, discarded) that end a sentence
// without emitting it.
type Assembler struct {
	Banks    *BankPool
	Queue    *TxQueue
	Counters *Counters

	// busyLookup reports whether channel i is currently busy (its
	// Timer is non-zero). Populated by Engine at construction so the
	// assembler can resolve suppress-mask checks without importing
	// the full channel table itself; nil is treated as "nothing
	// else is busy", which is what a bare Assembler in a unit test
	// wants.
	busyLookup func(i int) bool
}

// NewAssembler wires an assembler to its collaborators.
func NewAssembler(banks *BankPool, queue *TxQueue, counters *Counters) *Assembler {
	return &Assembler{Banks: banks, Queue: queue, Counters: counters}
}

// SetBusyLookup installs the per-channel busy predicate used to
// resolve suppression: a channel with bits set in its suppress mask
// is dropped while any of the named channels is busy.
func (a *Assembler) SetBusyLookup(f func(i int) bool) {
	a.busyLookup = f
}

// Deliver feeds one classified byte from channel ch into its
// in-progress sentence, dispatching to the pre-allocation, discard, or
// in-progress path depending on the channel's current state. round is
// the current scheduler round, recorded on the channel as
// lastWriteRound whenever a byte is stored, so the stuck sweep never
// evicts a bank written to in the round the sweep runs.
func (a *Assembler) Deliver(ch *Channel, raw byte, round uint64) {
	classified := Classify(raw)

	switch ch.state {
	case bankNone:
		a.deliverPreAllocation(ch, raw, classified, round)
	case bankDiscard:
		a.deliverDiscard(ch, classified)
	case bankInProgress:
		a.deliverInProgress(ch, raw, classified, round)
	}
}

func (a *Assembler) deliverPreAllocation(ch *Channel, raw, classified byte, round uint64) {
	switch {
	case classified == classTerminator:
		// A stray \r or \n between sentences. Silently discard.
		return

	case raw == ch.DiscardStart:
		ch.state = bankDiscard

	case classified == classBinary:
		bumpSaturating(&a.Counters.Binary)
		a.Counters.flagChannel(ch.Index)
		ch.state = bankDiscard

	case a.suppressed(ch):
		ch.state = bankDiscard

	default:
		idx, ok := a.Banks.Alloc()
		if !ok {
			bumpSaturating(&a.Counters.Congestion)
			a.Counters.flagChannel(ch.Index)
			ch.state = bankDiscard
			return
		}
		bank := a.Banks.Get(idx)
		bank.ref = ch.Index
		bank.data[0] = raw
		bank.ptr = 1
		ch.state = bankInProgress
		ch.bank = idx
		ch.invalid = false
		ch.wroteThisWindow = true
		ch.lastWriteRound = round
	}
}

// suppressed reports whether any channel named in ch's suppress mask
// is currently busy: a higher-priority channel (e.g. a primary GPS
// feed) pre-empts a lower one's echoes while it is busy.
func (a *Assembler) suppressed(ch *Channel) bool {
	if a.busyLookup == nil || ch.SuppressMask == 0 {
		return false
	}
	for i := 0; i < NumChannels; i++ {
		if ch.SuppressMask&(1<<uint(i)) != 0 && a.busyLookup(i) {
			return true
		}
	}
	return false
}

func (a *Assembler) deliverDiscard(ch *Channel, classified byte) {
	if classified == classTerminator {
		ch.state = bankNone
		ch.invalid = false
	}
	// Otherwise: absorb silently, state unchanged.
}

func (a *Assembler) deliverInProgress(ch *Channel, raw, classified byte, round uint64) {
	bank := a.Banks.Get(ch.bank)

	switch {
	case classified == classTerminator:
		ch.Timer = timerHigh
		a.Queue.Enqueue(ch.bank)
		ch.state = bankNone
		ch.bank = noBank
		ch.invalid = false

	case classified == classBinary:
		bumpSaturating(&a.Counters.Binary)
		a.Counters.flagChannel(ch.Index)
		ch.invalid = true
		a.drainToTerminator(ch)

	default:
		if bank.ptr >= bankPayload {
			bumpSaturating(&a.Counters.Overlong)
			a.Counters.flagChannel(ch.Index)
			ch.invalid = true
			a.drainToTerminator(ch)
			return
		}
		bank.data[bank.ptr] = raw
		bank.ptr++
		ch.wroteThisWindow = true
		ch.lastWriteRound = round
	}
}

// drainToTerminator frees the invalid bank immediately and switches
// the channel to the discard path: remaining bytes up to the next
// terminator are absorbed, not stored.
func (a *Assembler) drainToTerminator(ch *Channel) {
	a.Banks.Free(ch.bank)
	ch.bank = noBank
	ch.state = bankDiscard
}

// HandleFrameError is called when the bit parser reports a stop-bit
// violation: the counter is bumped, the channel flagged, and any bank
// in progress or being discarded is abandoned so the next sentence
// starts clean.
func (a *Assembler) HandleFrameError(ch *Channel) {
	bumpSaturating(&a.Counters.FrameErrors)
	a.Counters.flagChannel(ch.Index)
	if ch.state == bankInProgress {
		a.Banks.Free(ch.bank)
	}
	ch.bank = noBank
	ch.state = bankNone
	ch.invalid = false
}

// StuckSweep is the assembler-side half of the housekeeping stuck-
// bank sweep: given the one bank chosen by Housekeeping as stale,
// free it and return its owning channel to NONE.
func (a *Assembler) StuckSweep(ch *Channel) {
	if ch.state != bankInProgress {
		return
	}
	a.Banks.Free(ch.bank)
	ch.bank = noBank
	ch.state = bankNone
	ch.invalid = false
}
