package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestAssembler() (*Assembler, *BankPool, *TxQueue, *Counters) {
	banks := NewBankPool()
	queue := NewTxQueue()
	counters := &Counters{}
	return NewAssembler(banks, queue, counters), banks, queue, counters
}

func deliverString(a *Assembler, ch *Channel, s string, round uint64) {
	for i := 0; i < len(s); i++ {
		a.Deliver(ch, s[i], round)
	}
}

func TestAssembler_CompleteSentenceEnqueuesAndResetsTimer(t *testing.T) {
	a, banks, queue, _ := newTestAssembler()
	ch := newChannel(0)

	deliverString(a, ch, "$GPRMC,A*00\n", 1)

	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, noBank, ch.bank)
	assert.Equal(t, uint16(timerHigh), ch.Timer)
	assert.Equal(t, 1, queue.Len())

	idx, ok := queue.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "$GPRMC,A*00", string(banks.Get(idx).Payload()))
}

func TestAssembler_StrayTerminatorBetweenSentencesIsNotASentence(t *testing.T) {
	a, _, queue, _ := newTestAssembler()
	ch := newChannel(0)

	a.Deliver(ch, '\r', 1)
	a.Deliver(ch, '\n', 1)
	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, 0, queue.Len())
}

func TestAssembler_DiscardStartByteDropsWholeSentence(t *testing.T) {
	a, banks, queue, _ := newTestAssembler()
	ch := newChannel(0)
	ch.DiscardStart = '$'

	deliverString(a, ch, "$PGRMZ,1*00\n", 1)

	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, numBanks, banks.FreeCount(), "no bank should ever have been allocated")
}

func TestAssembler_BinaryFirstByteDropsAndCounts(t *testing.T) {
	a, _, queue, counters := newTestAssembler()
	ch := newChannel(0)

	a.Deliver(ch, 0x02, 1)
	assert.Equal(t, bankDiscard, ch.state)
	assert.Equal(t, byte(1), counters.Binary)
	assert.Equal(t, byte(1), counters.ErrChannels)

	a.Deliver(ch, 'x', 1)
	a.Deliver(ch, '\n', 1)
	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, 0, queue.Len())
}

func TestAssembler_BinaryMidSentenceDrainsToTerminatorThenFreesSilently(t *testing.T) {
	a, banks, queue, counters := newTestAssembler()
	ch := newChannel(0)

	deliverString(a, ch, "$GPABC", 1)
	a.Deliver(ch, 0xFF, 1)
	assert.Equal(t, byte(1), counters.Binary)
	assert.Equal(t, numBanks, banks.FreeCount(), "bank freed immediately on the binary byte, not at terminator")

	deliverString(a, ch, ",x*00\n", 1)
	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, 0, queue.Len())

	// A following clean sentence on the same channel is unaffected.
	deliverString(a, ch, "$GPGGA,ok\n", 2)
	assert.Equal(t, 1, queue.Len())
}

func TestAssembler_OverlongSentenceDrainsAndCounts(t *testing.T) {
	a, banks, queue, counters := newTestAssembler()
	ch := newChannel(0)

	for i := 0; i < bankPayload; i++ {
		a.Deliver(ch, 'a', 1)
	}
	assert.Equal(t, bankInProgress, ch.state)

	a.Deliver(ch, 'b', 1) // 81st byte: overlong
	assert.Equal(t, byte(1), counters.Overlong)
	assert.Equal(t, numBanks, banks.FreeCount())

	a.Deliver(ch, '\n', 1)
	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, 0, queue.Len())
}

func TestAssembler_ExactlyEightyBytesIsEmitted(t *testing.T) {
	a, _, queue, counters := newTestAssembler()
	ch := newChannel(0)

	for i := 0; i < bankPayload; i++ {
		a.Deliver(ch, 'a', 1)
	}
	a.Deliver(ch, '\n', 1)

	assert.Equal(t, byte(0), counters.Overlong)
	assert.Equal(t, 1, queue.Len())
}

func TestAssembler_SuppressedChannelIsDroppedSilently(t *testing.T) {
	a, banks, queue, counters := newTestAssembler()
	high := newChannel(0)
	high.Timer = timerHigh
	low := newChannel(1)
	low.SuppressMask = 1 << 0 // suppressed while channel 0 is busy

	a.SetBusyLookup(func(i int) bool {
		if i == 0 {
			return high.busy()
		}
		return low.busy()
	})

	deliverString(a, low, "$GPECHO*00\n", 1)

	assert.Equal(t, bankNone, low.state)
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, numBanks, banks.FreeCount())
	assert.Equal(t, Counters{}, *counters, "suppression is silent: no counter bumped")
}

func TestAssembler_CongestionWhenPoolExhausted(t *testing.T) {
	a, banks, _, counters := newTestAssembler()
	for i := 0; i < numBanks; i++ {
		_, ok := banks.Alloc()
		assert.True(t, ok)
	}

	ch := newChannel(3)
	a.Deliver(ch, '$', 1)

	assert.Equal(t, bankDiscard, ch.state)
	assert.Equal(t, byte(1), counters.Congestion)
	assert.Equal(t, byte(1<<3), counters.ErrChannels)
}

func TestAssembler_FrameErrorAbandonsInProgressBank(t *testing.T) {
	a, banks, _, counters := newTestAssembler()
	ch := newChannel(0)
	deliverString(a, ch, "$GPRMC,partial", 1)
	assert.Equal(t, bankInProgress, ch.state)

	a.HandleFrameError(ch)

	assert.Equal(t, bankNone, ch.state)
	assert.Equal(t, noBank, ch.bank)
	assert.Equal(t, numBanks, banks.FreeCount())
	assert.Equal(t, byte(1), counters.FrameErrors)
}

func TestAssembler_CountersSaturateAtMax(t *testing.T) {
	a, _, _, counters := newTestAssembler()
	ch := newChannel(0)
	for i := 0; i < 300; i++ {
		a.Deliver(ch, 0xFF, 1)
		a.Deliver(ch, '\n', 1)
	}
	assert.Equal(t, byte(0xFF), counters.Binary)
}
