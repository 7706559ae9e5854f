package core

import "time"

/*-------------------------------------------------------------------
 *
 * Name:	Scheduler
 *
 * Purpose:	The cooperative, time-triggered loop that interleaves
 *		sampling, parsing, assembling, transmission, and
 *		housekeeping so every component's deadline is met
 *		statically.
 *
 * Description:	A tick-driven round counter plus an alternating
 *		two-round outer cycle stand in for true cycle-exact
 *		timing: every fast channel (0-3) is sampled and parsed
 *		once per round; every slow channel (4-7) once every eight
 *		rounds, preserving the 8:1 ratio between 4800 and 38400
 *		baud. This keeps three ordering guarantees intact: bytes
 *		arrive in order, sentences queue in terminator order, and
 *		a byte assembled in round r is never eligible for
 *		transmission before round r+1.
 *
 *--------------------------------------------------------------*/

// Logger is the subset of *github.com/charmbracelet/log.Logger this
// package depends on, kept as a local interface so internal/core has
// no import on the logging library itself. Calls are gated debug/error
// events only, never on the hot per-sample path; normal operation is
// surfaced through Counters, not log lines.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(interface{}, ...interface{}) {}
func (noopLogger) Error(interface{}, ...interface{}) {}

// Scheduler owns every per-channel and shared collaborator and drives
// them one round at a time.
type Scheduler struct {
	Channels     [NumChannels]*Channel
	Sampler      *Sampler
	Assembler    *Assembler
	Transmitter  *Transmitter
	Housekeeping *Housekeeping
	Counters     *Counters
	Log          Logger

	// ConfigPinAsserted and EnterConfig back the housekeeping
	// configuration-poll slot; both are function fields, not
	// interfaces, so this package stays free of a dependency on
	// internal/configpin or internal/dialogue.
	ConfigPinAsserted func() bool
	EnterConfig       func()

	round     uint64
	outerSlot int
}

// NewScheduler wires a scheduler over eight freshly reset channels.
func NewScheduler(sampler *Sampler, assembler *Assembler, transmitter *Transmitter, housekeeping *Housekeeping, counters *Counters) *Scheduler {
	s := &Scheduler{
		Sampler:      sampler,
		Assembler:    assembler,
		Transmitter:  transmitter,
		Housekeeping: housekeeping,
		Counters:     counters,
		Log:          noopLogger{},
	}
	for i := 0; i < NumChannels; i++ {
		s.Channels[i] = newChannel(i)
	}
	assembler.SetBusyLookup(func(i int) bool { return s.Channels[i].busy() })
	return s
}

// Round returns the current round number, used for lastWriteRound
// bookkeeping and tests.
func (s *Scheduler) Round() uint64 { return s.round }

// RunRound advances every channel, the transmitter, and (on the
// appropriate half of the outer cycle) housekeeping by one round.
// loopTime is the caller-measured wall time the previous round took,
// fed straight to the loop-time diagnostic.
func (s *Scheduler) RunRound(loopTime time.Duration) {
	for _, ch := range s.Channels {
		if !ch.Fast && s.round%8 != 0 {
			continue
		}
		s0 := s.Sampler.Sample(ch.Index)
		s1 := s.Sampler.Sample(ch.Index)
		s2 := s.Sampler.Sample(ch.Index)
		s3 := s.Sampler.Sample(ch.Index)

		switch ch.stepBit(s0, s1, s2, s3) {
		case parseByte:
			ch.ready = false
			s.Assembler.Deliver(ch, ch.char, s.round)
		case parseFrameErr:
			s.Log.Debug("frame error", "channel", ch.Index)
			s.Assembler.HandleFrameError(ch)
		}
	}

	s.Transmitter.Step()

	if s.outerSlot == 0 {
		s.Housekeeping.ObserveLoopTime(loopTime)
		s.Housekeeping.TimerStep(s.Channels[0:4])
	} else {
		if s.ConfigPinAsserted != nil && s.ConfigPinAsserted() {
			if s.EnterConfig != nil {
				s.EnterConfig()
			}
			s.reinit()
		}
		s.Housekeeping.TimerStep(s.Channels[4:8])
		s.Housekeeping.StuckSweep(s.Channels[:], s.Assembler, s.Counters, s.round)
	}

	s.outerSlot ^= 1
	s.round++
}

// reinit restores every channel to its post-power-on state and clears
// error counters. Called on return from the configuration dialogue,
// since any setting it changed (baud, prefix, suppress masks) can
// invalidate a sentence that was only half assembled under the old
// configuration.
func (s *Scheduler) reinit() {
	for _, ch := range s.Channels {
		ch.reset()
	}
	s.Assembler.Banks.reset()
	s.Transmitter.Queue.reset()
	s.Counters.clear()
}
