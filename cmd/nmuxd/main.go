// Command nmuxd is the hosted daemon for the eight-channel NMEA 0183
// multiplexer core. It wires eight input serial lines and one output
// line through internal/ioline, watches the configuration pin through
// internal/configpin, and runs internal/core.Engine until signalled to
// stop: pflag flags, sequential collaborator init, one long-running
// process call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/bjarnek44/nmeamux/internal/configpin"
	"github.com/bjarnek44/nmeamux/internal/core"
	"github.com/bjarnek44/nmeamux/internal/dialogue"
	"github.com/bjarnek44/nmeamux/internal/ioline"
	"github.com/bjarnek44/nmeamux/internal/settings"
)

func main() {
	var inputDevices = pflag.StringArrayP("input", "i", nil,
		"Input channel device, repeatable, in channel order (e.g. -i /dev/ttyUSB0 -i /dev/ttyUSB1 ...). Up to 8.")
	var outputDevice = pflag.StringP("output", "o", "", "Output serial device.")
	var settingsDir = pflag.StringP("settings-dir", "s", ".", "Directory holding factory.yaml/user.bin.")
	var gpioChip = pflag.StringP("gpio-chip", "g", "", "GPIO chip for the configuration pin (e.g. gpiochip0). Empty disables real GPIO and uses a fixed watcher.")
	var gpioLine = pflag.IntP("gpio-line", "l", 0, "GPIO offset for the configuration pin.")
	var simulate = pflag.BoolP("simulate", "x", false, "Run against pty loopback harnesses instead of real devices, for demos and tests.")
	var debug = pflag.BoolP("debug", "d", false, "Enable debug logging.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - eight-channel NMEA 0183 multiplexer daemon.\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	level := log.InfoLevel
	if *debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: level, ReportTimestamp: true})

	store := settings.NewStore(*settingsDir)
	engine, err := core.NewEngine(store, logger)
	if err != nil {
		logger.Error("load settings", "err", err)
		os.Exit(1)
	}

	var pin configpin.Watcher
	if *gpioChip != "" {
		w, err := configpin.NewGPIOWatcher(*gpioChip, *gpioLine)
		if err != nil {
			logger.Error("open config pin", "err", err)
			os.Exit(1)
		}
		pin = w
	} else {
		pin = configpin.NewFixedWatcher()
	}
	defer pin.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *simulate {
		runSimulated(ctx, engine, pin, logger)
		return
	}

	if err := attachRealInputs(ctx, engine, *inputDevices, logger); err != nil {
		logger.Error("attach inputs", "err", err)
		os.Exit(1)
	}

	outPort, err := attachRealOutput(engine, *outputDevice)
	if err != nil {
		logger.Error("attach output", "err", err)
		os.Exit(1)
	}
	if outPort != nil {
		defer outPort.Close()
	}

	engine.Scheduler.ConfigPinAsserted = pin.Asserted
	engine.Scheduler.EnterConfig = func() {
		enterDialogue(engine, os.Stdin, os.Stdout)
	}

	logger.Info("starting", "version", core.Version)
	engine.Run(ctx, roundPeriod)
}

// roundPeriod is the hosted scheduler's tick cadence. Each round
// consumes one bit-time of every fast channel, and a byte frame takes
// 11 bit-times, so at this period a fast channel is re-serialised at
// about 450 bytes per second - well below the 3,840 bytes per second a
// 38,400 baud line can carry. Bytes arriving faster than that wait in
// the channel's BitStream buffer and the tty's receive buffer.
const roundPeriod = 200 * time.Microsecond

func attachRealInputs(ctx context.Context, engine *core.Engine, devices []string, logger *log.Logger) error {
	for i, dev := range devices {
		if i >= core.NumChannels {
			logger.Debug("ignoring extra input device", "device", dev)
			break
		}
		if dev == "" {
			continue
		}
		baud := 38400
		if i >= 4 {
			baud = 4800
		}
		port, err := ioline.Open(dev, baud)
		if err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
		engine.Sampler().Attach(i, ioline.NewBitStream(ctx, portReader{port}))
	}
	return nil
}

func attachRealOutput(engine *core.Engine, device string) (*ioline.Port, error) {
	if device == "" {
		return nil, nil
	}
	port, err := ioline.Open(device, 0)
	if err != nil {
		return nil, err
	}
	engine.Write = func(b byte) { port.Write([]byte{b}) }
	return port, nil
}

// portReader adapts ioline.Port's ReadByte to io.Reader for BitStream.
type portReader struct{ p *ioline.Port }

func (r portReader) Read(buf []byte) (int, error) {
	b, err := r.p.ReadByte()
	if err != nil {
		return 0, err
	}
	buf[0] = b
	return 1, nil
}

func runSimulated(ctx context.Context, engine *core.Engine, pin configpin.Watcher, logger *log.Logger) {
	harnesses := make([]*ioline.Harness, core.NumChannels)
	for i := range harnesses {
		h, err := ioline.NewHarness()
		if err != nil {
			logger.Error("open simulated channel", "channel", i, "err", err)
			os.Exit(1)
		}
		harnesses[i] = h
		engine.Sampler().Attach(i, ioline.NewBitStream(ctx, h.Slave))
	}
	out, err := ioline.NewHarness()
	if err != nil {
		logger.Error("open simulated output", "err", err)
		os.Exit(1)
	}
	engine.Write = func(b byte) { out.Slave.Write([]byte{b}) }

	engine.Scheduler.ConfigPinAsserted = pin.Asserted
	engine.Scheduler.EnterConfig = func() {
		enterDialogue(engine, os.Stdin, os.Stdout)
	}

	logger.Info("starting simulated", "version", core.Version, "output_pty", out.Master.Name())
	for i, h := range harnesses {
		logger.Info("simulated channel", "channel", i, "pty", h.Master.Name())
	}
	engine.Run(ctx, roundPeriod)
}

func enterDialogue(engine *core.Engine, r *os.File, w *os.File) {
	d := dialogue.New(engine)
	d.Run(r, w)
}
