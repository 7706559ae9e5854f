// Package dialogue implements the one-letter line-oriented
// configuration command grammar entered when the configuration pin is
// asserted: each line is a command letter followed by its argument,
// read and dispatched one line at a time and answered with a trailing
// Ok or Error line.
package dialogue

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bjarnek44/nmeamux/internal/settings"
)

// Diagnostics is the data the 'G' command prints: firmware identity,
// board mode, loop-time profile, and the saturating error counters.
type Diagnostics struct {
	Version     string
	BoardMode   string
	LoopMin     time.Duration
	LoopMax     time.Duration
	Congestion  byte
	FrameErrors byte
	Overlong    byte
	Binary      byte
	Slow        byte
	ErrChannels byte
}

// Target is everything the dialogue needs from the running engine. An
// *core.Engine satisfies it; the interface lives here so this package
// never imports internal/core, keeping the dialogue reachable only
// through the narrow settings/diagnostics surface it actually needs
// rather than the engine's internals.
type Target interface {
	Settings() settings.Settings
	ApplySettings(settings.Settings)
	Diagnostics() Diagnostics
	ReloadUser() error
	SaveUser() error
	ResetFactory() error
	Reinit()
}

// Dialogue runs the command loop against a Target until r is
// exhausted (the real device runs it until the configuration pin is
// released; a hosted caller closes r to the same effect).
type Dialogue struct {
	target Target
}

// New returns a Dialogue bound to target.
func New(target Target) *Dialogue {
	return &Dialogue{target: target}
}

// Run reads newline-terminated commands from r, replying Ok\n or
// Error\n to w for each one, until r reaches EOF. On return it calls
// target.Reinit() so the core state is fully reinitialised before
// normal operation resumes.
func (d *Dialogue) Run(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		out, err := d.dispatch(line)
		if err != nil {
			fmt.Fprintf(w, "Error\n")
			continue
		}
		if out != "" {
			fmt.Fprint(w, out)
		}
		fmt.Fprintf(w, "Ok\n")
	}
	d.target.Reinit()
}

// dispatch executes one command line, returning any reply text due
// before the trailing Ok ('P' and 'G' are the only commands that
// produce one).
func (d *Dialogue) dispatch(line string) (string, error) {
	if len(line) == 0 {
		return "", fmt.Errorf("dialogue: empty line")
	}

	cmd := line[0]
	arg := line[1:]

	switch cmd {
	case 'I':
		mask, err := parseHexByte(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.InputInvert = mask
		d.target.ApplySettings(s)

	case 'J':
		v, err := parseBoolDigit(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.OutputInvert = v
		d.target.ApplySettings(s)

	case 'C':
		v, err := parseBoolDigit(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.Prefix = v
		d.target.ApplySettings(s)

	case 'N':
		v, err := parseBoolDigit(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.ReturnNewline = v
		d.target.ApplySettings(s)

	case 'D':
		ch, rest, err := parseChannelDigit(arg)
		if err != nil {
			return "", err
		}
		b, err := parseHexByte(rest)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.DiscardStart[ch] = b
		d.target.ApplySettings(s)

	case 'F':
		mask, err := parseHexByte(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.FastMask = mask
		d.target.ApplySettings(s)

	case 'U':
		ch, rest, err := parseChannelDigit(arg)
		if err != nil {
			return "", err
		}
		mask, err := parseHexByte(rest)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.SuppressMask[ch] = mask
		d.target.ApplySettings(s)

	case 'H':
		mask, err := parseHexByte(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.SchmittMask = mask
		d.target.ApplySettings(s)

	case 'B':
		code, err := parseBaudDigit(arg)
		if err != nil {
			return "", err
		}
		s := d.target.Settings()
		s.OutputBaud = code
		d.target.ApplySettings(s)

	case 'P':
		if strings.TrimSpace(arg) != "" {
			return "", fmt.Errorf("dialogue: P takes no argument")
		}
		return FormatSettings(d.target.Settings()), nil

	case 'G':
		if strings.TrimSpace(arg) != "" {
			return "", fmt.Errorf("dialogue: G takes no argument")
		}
		return FormatDiagnostics(d.target.Diagnostics()), nil

	case 'L':
		if strings.TrimSpace(arg) != "" {
			return "", fmt.Errorf("dialogue: L takes no argument")
		}
		return "", d.target.ReloadUser()

	case 'S':
		if strings.TrimSpace(arg) != "" {
			return "", fmt.Errorf("dialogue: S takes no argument")
		}
		return "", d.target.SaveUser()

	case 'R':
		if strings.TrimSpace(arg) != "" {
			return "", fmt.Errorf("dialogue: R takes no argument")
		}
		return "", d.target.ResetFactory()

	default:
		return "", fmt.Errorf("dialogue: unrecognized command %q", line)
	}

	return "", nil
}

// FormatSettings renders the 'P' command's human-readable dump.
func FormatSettings(s settings.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "prefix=%v fast_mask=%02X return_newline=%v\n", s.Prefix, s.FastMask, s.ReturnNewline)
	fmt.Fprintf(&b, "input_invert=%02X output_invert=%v output_baud=%d schmitt_mask=%02X\n",
		s.InputInvert, s.OutputInvert, s.OutputBaudValue(), s.SchmittMask)
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "ch%d suppress=%02X discard_start=%02X\n", i, s.SuppressMask[i], s.DiscardStart[i])
	}
	return b.String()
}

// FormatDiagnostics renders the 'G' command's diagnostic dump.
func FormatDiagnostics(d Diagnostics) string {
	return fmt.Sprintf(
		"version=%s board_mode=%s loop_min=%s loop_max=%s congestion=%d frame_errors=%d overlong=%d slow=%d binary=%d err_channels=%02X\n",
		d.Version, d.BoardMode, d.LoopMin, d.LoopMax, d.Congestion, d.FrameErrors, d.Overlong, d.Slow, d.Binary, d.ErrChannels,
	)
}

func parseHexByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("dialogue: missing hex byte argument")
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("dialogue: bad hex byte %q: %w", s, err)
	}
	return byte(v), nil
}

func parseBoolDigit(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("dialogue: expected 0 or 1, got %q", s)
	}
}

func parseBaudDigit(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "0":
		return settings.Baud4800, nil
	case "1":
		return settings.Baud38400, nil
	case "2":
		return settings.Baud115200, nil
	default:
		return 0, fmt.Errorf("dialogue: expected baud code 0-2, got %q", s)
	}
}

// parseChannelDigit splits a leading channel digit (0-7) from the
// rest of the argument, as used by the D and U commands.
func parseChannelDigit(s string) (int, string, error) {
	if len(s) == 0 {
		return 0, "", fmt.Errorf("dialogue: missing channel digit")
	}
	ch := int(s[0] - '0')
	if ch < 0 || ch > 7 {
		return 0, "", fmt.Errorf("dialogue: channel digit out of range 0-7: %q", s[0:1])
	}
	return ch, s[1:], nil
}
