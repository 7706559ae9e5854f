package core

import "time"

/*-------------------------------------------------------------------
 *
 * Name:	Transmitter
 *
 * Purpose:	State machine that copies a bank's contents through a
 *		one-byte staging slot to the output UART, inserting an
 *		optional channel prefix and line terminator, and
 *		honouring the inter-sentence gap.
 *
 * Description:	IDLE -> SETUP_PREFIX -> SETUP_POINTER -> STREAM ->
 *		FINISH_A -> FINISH_B -> IDLE. Step() advances the state
 *		machine by one scheduler slot, producing at most one byte
 *		into the staging slot. Feed() is a separate helper, run
 *		from its own scheduling slot, that moves the staging
 *		slot's contents to the real UART once it is ready and the
 *		inter-sentence gap has elapsed.
 *
 *--------------------------------------------------------------*/

type txState int

const (
	txIdle txState = iota
	txSetupPrefix
	txSetupPointer
	txStream
	txFinishA
	txFinishB
)

// Transmitter drives bank contents onto the single output line.
type Transmitter struct {
	Banks *BankPool
	Queue *TxQueue

	// PrefixEnabled, ReturnNewline and OutputBaud read live
	// configuration. They are functions rather than plain fields
	// because the configuration dialogue can change them.
	// PrefixEnabled is read once per sentence, when txIdle dequeues
	// it; ReturnNewline is read when the sentence reaches txFinishA;
	// OutputBaud is read each time the gap timer is armed.
	PrefixEnabled func() bool
	ReturnNewline func() bool
	OutputBaud    func() int

	state txState
	bank  int
	ptr   int
	end   int

	staging StagingSlot
	gap     GapTimer
}

// NewTransmitter wires a transmitter to its bank pool, queue, and
// configuration accessors.
func NewTransmitter(banks *BankPool, queue *TxQueue, prefixEnabled, returnNewline func() bool, outputBaud func() int) *Transmitter {
	return &Transmitter{
		Banks:         banks,
		Queue:         queue,
		PrefixEnabled: prefixEnabled,
		ReturnNewline: returnNewline,
		OutputBaud:    outputBaud,
	}
}

// Step advances the transmitter state machine by one scheduler slot.
func (t *Transmitter) Step() {
	switch t.state {

	case txIdle:
		idx, ok := t.Queue.Dequeue()
		if !ok {
			return
		}
		t.bank = idx
		if t.PrefixEnabled() {
			t.state = txSetupPrefix
		} else {
			t.state = txSetupPointer
		}

	case txSetupPrefix:
		bank := t.Banks.Get(t.bank)
		if t.staging.Push('1' + byte(bank.ref)) {
			t.state = txSetupPointer
		}

	case txSetupPointer:
		bank := t.Banks.Get(t.bank)
		t.ptr = 0
		t.end = bank.ptr
		t.state = txStream

	case txStream:
		bank := t.Banks.Get(t.bank)
		if t.ptr >= t.end {
			t.state = txFinishA
			return
		}
		if t.staging.Push(bank.data[t.ptr]) {
			t.ptr++
			if t.ptr >= t.end {
				t.state = txFinishA
			}
		}

	case txFinishA:
		var b byte
		if t.ReturnNewline() {
			b = '\r'
		} else {
			b = '\n'
		}
		if !t.staging.Push(b) {
			return
		}
		if t.ReturnNewline() {
			t.state = txFinishB
		} else {
			t.finishSentence()
		}

	case txFinishB:
		if !t.staging.Push('\n') {
			return
		}
		t.finishSentence()
	}
}

func (t *Transmitter) finishSentence() {
	t.Banks.Free(t.bank)
	t.bank = 0
	t.state = txIdle
}

// Feed is the separate helper that transfers the staging slot's
// contents to the real UART. It must be called from its own
// scheduler slot, distinct from Step's, so that a byte written into
// the staging slot and the same byte being flushed to the wire never
// happen on the same pass.
func (t *Transmitter) Feed(now time.Time, uartReady bool, write func(byte)) {
	if !uartReady {
		return
	}
	if !t.gap.Ready(now) {
		return
	}
	b, ok := t.staging.Pop()
	if !ok {
		return
	}
	write(b)
	if b == '\n' {
		t.gap.Arm(now, t.OutputBaud())
	}
}

// StagingSlot is the one-byte mailbox between the scheduler loop and
// the UART feeder: the loop produces into it, the feeder consumes
// from it, and a single full flag coordinates them.
type StagingSlot struct {
	value byte
	full  bool
}

// Push stores b if the slot is empty. Returns false (no-op) if the
// slot still holds an unconsumed byte.
func (s *StagingSlot) Push(b byte) bool {
	if s.full {
		return false
	}
	s.value = b
	s.full = true
	return true
}

// Pop removes and returns the staged byte, if any.
func (s *StagingSlot) Pop() (byte, bool) {
	if !s.full {
		return 0, false
	}
	s.full = false
	return s.value, true
}

// GapTimer enforces the inter-sentence gap: armed for roughly 30
// bit-times at the output baud rate on every '\n', read-only
// otherwise.
type GapTimer struct {
	due     time.Time
	running bool
}

const gapBitTimes = 30

// Arm restarts the gap for the given output baud rate, measured from
// now.
func (g *GapTimer) Arm(now time.Time, baud int) {
	if baud <= 0 {
		g.running = false
		return
	}
	bitTime := time.Second / time.Duration(baud)
	g.due = now.Add(bitTime * gapBitTimes)
	g.running = true
}

// Ready reports whether the gap has elapsed (or was never armed).
func (g *GapTimer) Ready(now time.Time) bool {
	if !g.running {
		return true
	}
	if !now.Before(g.due) {
		g.running = false
		return true
	}
	return false
}
