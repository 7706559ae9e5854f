package dialogue

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjarnek44/nmeamux/internal/settings"
)

// fakeTarget is a minimal in-memory dialogue.Target for exercising the
// command grammar without a running core.Engine.
type fakeTarget struct {
	settings     settings.Settings
	diagnostics  Diagnostics
	reinitCalled bool
	reloadErr    error
	saveErr      error
	resetErr     error
	savedSeen    settings.Settings
}

func (f *fakeTarget) Settings() settings.Settings          { return f.settings }
func (f *fakeTarget) ApplySettings(s settings.Settings)    { f.settings = s }
func (f *fakeTarget) Diagnostics() Diagnostics             { return f.diagnostics }
func (f *fakeTarget) ReloadUser() error                    { return f.reloadErr }
func (f *fakeTarget) SaveUser() error                      { f.savedSeen = f.settings; return f.saveErr }
func (f *fakeTarget) ResetFactory() error                  { return f.resetErr }
func (f *fakeTarget) Reinit()                               { f.reinitCalled = true }

func newFakeTarget() *fakeTarget {
	return &fakeTarget{settings: settings.Default()}
}

func runLines(d *Dialogue, lines ...string) string {
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	d.Run(in, &out)
	return out.String()
}

func TestDialogue_FastMaskCommand(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	out := runLines(d, "F07")
	assert.Contains(t, out, "Ok\n")
	assert.Equal(t, byte(0x07), target.settings.FastMask)
}

func TestDialogue_OutputBaudCommand(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	runLines(d, "B1")
	assert.Equal(t, settings.Baud38400, target.settings.OutputBaud)
}

func TestDialogue_PerChannelDiscardStart(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	runLines(d, "D3A6")
	assert.Equal(t, byte(0xA6), target.settings.DiscardStart[3])
}

func TestDialogue_PerChannelSuppressMask(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	runLines(d, "U5FF")
	assert.Equal(t, byte(0xFF), target.settings.SuppressMask[5])
}

func TestDialogue_BooleanToggles(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	runLines(d, "C1", "N1", "J1")
	assert.True(t, target.settings.Prefix)
	assert.True(t, target.settings.ReturnNewline)
	assert.True(t, target.settings.OutputInvert)
}

func TestDialogue_MalformedLineRepliesError(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	out := runLines(d, "Z9")
	assert.Contains(t, out, "Error\n")
}

func TestDialogue_MalformedArgumentRepliesError(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	out := runLines(d, "B9")
	assert.Contains(t, out, "Error\n")
	assert.Equal(t, settings.Default().OutputBaud, target.settings.OutputBaud, "bad command must not mutate settings")
}

func TestDialogue_PrintSettingsCommand(t *testing.T) {
	target := newFakeTarget()
	target.settings.Prefix = true
	d := New(target)

	out := runLines(d, "P")
	assert.Contains(t, out, "prefix=true")
	assert.Contains(t, out, "Ok\n")
}

func TestDialogue_DiagnosticsCommand(t *testing.T) {
	target := newFakeTarget()
	target.diagnostics = Diagnostics{
		Version:     "v-test",
		LoopMin:     time.Millisecond,
		LoopMax:     2 * time.Millisecond,
		Congestion:  1,
		FrameErrors: 2,
		Overlong:    3,
		Binary:      4,
		Slow:        5,
		ErrChannels: 0x0F,
	}
	d := New(target)

	out := runLines(d, "G")
	assert.Contains(t, out, "version=v-test")
	assert.Contains(t, out, "congestion=1")
	assert.Contains(t, out, "err_channels=0F")
}

func TestDialogue_SaveReloadResetCommands(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	out := runLines(d, "S", "L", "R")
	assert.Equal(t, "Ok\nOk\nOk\n", out)
}

func TestDialogue_PropagatesCollaboratorErrors(t *testing.T) {
	target := newFakeTarget()
	target.saveErr = errors.New("disk full")
	d := New(target)

	out := runLines(d, "S")
	assert.Contains(t, out, "Error\n")
}

func TestDialogue_ReinitializesOnExit(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	runLines(d, "P")
	assert.True(t, target.reinitCalled)
}

func TestDialogue_EmptyLineIsAnError(t *testing.T) {
	target := newFakeTarget()
	d := New(target)

	var out bytes.Buffer
	d.Run(strings.NewReader("\n"), &out)
	assert.Contains(t, out.String(), "Error\n")
}

func TestFormatDiagnostics_IsOneLineWithTrailingNewline(t *testing.T) {
	s := FormatDiagnostics(Diagnostics{Version: "x"})
	require.True(t, strings.HasSuffix(s, "\n"))
	assert.Equal(t, 1, strings.Count(s, "\n"))
}
