package core

import (
	"context"
	"time"

	"github.com/bjarnek44/nmeamux/internal/dialogue"
	"github.com/bjarnek44/nmeamux/internal/settings"
)

/*-------------------------------------------------------------------
 *
 * Name:	Engine
 *
 * Purpose:	Top-level assembly of every core collaborator plus the
 *		persisted-settings plumbing the configuration dialogue
 *		needs (settings.Store, Reinit, diagnostics), so the whole
 *		device is runnable end to end from cmd/nmuxd.
 *
 *--------------------------------------------------------------*/

// Version is reported by the 'G' dialogue command as the running
// build's firmware-version string.
const Version = "nmeamux-hosted 1.0"

// BoardMode is reported by the 'G' dialogue command alongside Version.
// The original hardware derives this from strap pins read at boot;
// this port has no board to strap, so it reports a fixed value for the
// one environment it runs in.
const BoardMode = "HOSTED"

// Engine owns a Scheduler plus the settings store it applies settings
// from and saves them back to. It implements dialogue.Target so
// internal/dialogue can drive it directly.
type Engine struct {
	Scheduler *Scheduler

	store    settings.Store
	settings settings.Settings

	// OutputReady, Now and Write back the transmitter's UART-feeder
	// slot; supplied by the cmd layer so internal/core never imports
	// internal/ioline.
	OutputReady func() bool
	Now         func() time.Time
	Write       func(byte)
}

// NewEngine loads the user settings from store (falling back to
// factory defaults) and wires a complete Scheduler around them.
func NewEngine(store settings.Store, log Logger) (*Engine, error) {
	v, err := store.LoadUser()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:       store,
		settings:    v,
		OutputReady: func() bool { return true },
		Now:         time.Now,
		Write:       func(byte) {},
	}

	banks := NewBankPool()
	queue := NewTxQueue()
	counters := &Counters{}
	assembler := NewAssembler(banks, queue, counters)
	transmitter := NewTransmitter(banks, queue,
		func() bool { return e.settings.Prefix },
		func() bool { return e.settings.ReturnNewline },
		func() int { return e.settings.OutputBaudValue() },
	)
	housekeeping := NewHousekeeping(outerCyclesPerLoopTimeWindow)

	sched := NewScheduler(NewSampler(), assembler, transmitter, housekeeping, counters)
	if log != nil {
		sched.Log = log
	}
	e.Scheduler = sched
	e.applyToChannels()

	return e, nil
}

// outerCyclesPerLoopTimeWindow sizes the busy-timer decrement so
// TIMER_HIGH decays over roughly 2.5s; see NewHousekeeping. At one
// outer cycle per two rounds and cmd/nmuxd's 200µs round period, one
// outer cycle is 400µs, so 6250 outer cycles span 2.5s.
const outerCyclesPerLoopTimeWindow = 6250

// Sampler exposes the scheduler's sampler so the caller can Attach
// BitSources from internal/ioline per channel.
func (e *Engine) Sampler() *Sampler { return e.Scheduler.Sampler }

// Run drives the scheduler at period cadence until ctx is cancelled,
// feeding the transmitter's staging slot to the real UART writer each
// round.
func (e *Engine) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			loopTime := now.Sub(last)
			last = now
			e.Scheduler.RunRound(loopTime)
			e.Scheduler.Transmitter.Feed(e.Now(), e.OutputReady(), e.Write)
		}
	}
}

// applyToChannels pushes the current settings onto every channel and
// the sampler. Settings are consumed as immutable input across one
// sentence lifetime: a change only takes effect for sentences that
// start after this call, never mid-sentence.
func (e *Engine) applyToChannels() {
	for i := 0; i < NumChannels; i++ {
		ch := e.Scheduler.Channels[i]
		ch.SuppressMask = e.settings.SuppressMask[i]
		ch.DiscardStart = e.settings.DiscardStart[i]
		if i < 4 {
			ch.Fast = e.settings.ChannelFast(i)
		} else {
			ch.Fast = false
		}
	}
	e.Scheduler.Sampler.InvertMask = e.settings.InputInvert
}

// Settings implements dialogue.Target.
func (e *Engine) Settings() settings.Settings {
	return e.settings
}

// ApplySettings implements dialogue.Target: install new settings and
// push them out to the channels/sampler immediately (the dialogue
// only runs while the device is otherwise idle, so there is no
// mid-sentence race to protect against).
func (e *Engine) ApplySettings(s settings.Settings) {
	e.settings = s
	e.applyToChannels()
}

// Diagnostics implements dialogue.Target.
func (e *Engine) Diagnostics() dialogue.Diagnostics {
	c := e.Scheduler.Counters
	return dialogue.Diagnostics{
		Version:     Version,
		BoardMode:   BoardMode,
		LoopMin:     e.Scheduler.Housekeeping.Loop.min,
		LoopMax:     e.Scheduler.Housekeeping.Loop.max,
		Congestion:  c.Congestion,
		FrameErrors: c.FrameErrors,
		Overlong:    c.Overlong,
		Binary:      c.Binary,
		Slow:        c.Slow,
		ErrChannels: c.ErrChannels,
	}
}

// ReloadUser implements dialogue.Target ('L' command).
func (e *Engine) ReloadUser() error {
	v, err := e.store.LoadUser()
	if err != nil {
		return err
	}
	e.ApplySettings(v)
	return nil
}

// SaveUser implements dialogue.Target ('S' command).
func (e *Engine) SaveUser() error {
	return e.store.SaveUser(e.settings)
}

// ResetFactory implements dialogue.Target ('R' command).
func (e *Engine) ResetFactory() error {
	v, err := e.store.ResetToFactory()
	if err != nil {
		return err
	}
	e.ApplySettings(v)
	return nil
}

// Reinit implements dialogue.Target: full channel/bank/counter
// reinitialisation on leaving the configuration dialogue.
func (e *Engine) Reinit() {
	e.Scheduler.reinit()
	e.applyToChannels()
}
