// Package settings implements the 24-byte persisted configuration
// blob: per-channel suppression masks and discard-start bytes, plus
// the global flags for channel-prefix output, fast/slow selection,
// return-newline, input/output inversion, output baud, and input
// Schmitt-trigger enable.
//
// This package is the wire codec for that blob plus a thin file-backed
// Store (see store.go) so the whole system is runnable end to end.
package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// WireSize is the exact on-disk layout size of the persisted blob.
const WireSize = 24

// OutputBaud codes, matching the dialogue's 'B' command.
const (
	Baud4800 = iota
	Baud38400
	Baud115200
)

var baudValues = map[int]int{
	Baud4800:   4800,
	Baud38400:  38400,
	Baud115200: 115200,
}

// Settings is the decoded form of the 24-byte persisted blob.
type Settings struct {
	SuppressMask [8]byte `yaml:"suppress_mask"`
	DiscardStart [8]byte `yaml:"discard_start"`

	Prefix        bool `yaml:"prefix"`         // channel-prefix output enabled
	FastMask      byte `yaml:"fast_mask"`       // bit i set: channel i runs at its fast rate
	ReturnNewline bool `yaml:"return_newline"`  // \r\n rather than \n
	InputInvert   byte `yaml:"input_invert"`    // bit i set: channel i's input is inverted
	OutputInvert  bool `yaml:"output_invert"`   // output line is inverted
	OutputBaud    int  `yaml:"output_baud"`     // one of Baud4800/Baud38400/Baud115200
	SchmittMask   byte `yaml:"schmitt_mask"`    // bit i set: channel i's Schmitt trigger enabled
}

// Default returns the factory-default settings: no suppression, no
// discard filters, prefix off, all channels fast, \n only, no
// inversion, 4800 baud output, Schmitt triggers off.
func Default() Settings {
	return Settings{
		OutputBaud: Baud4800,
		FastMask:   0xFF,
	}
}

// OutputBaudValue returns the actual bps for the configured code,
// falling back to 4800 for an out-of-range code.
func (s Settings) OutputBaudValue() int {
	if v, ok := baudValues[s.OutputBaud]; ok {
		return v
	}
	return 4800
}

// ChannelFast reports whether channel ch is configured to run at its
// fast nominal rate (38400 for channels 0-3; channels 4-7 are always
// slow regardless of this bit).
func (s Settings) ChannelFast(ch int) bool {
	if ch < 0 || ch > 7 {
		return false
	}
	return s.FastMask&(1<<uint(ch)) != 0
}

// Marshal encodes Settings into the 24-byte wire form.
func (s Settings) Marshal() [WireSize]byte {
	var out [WireSize]byte
	copy(out[0:8], s.SuppressMask[:])
	copy(out[8:16], s.DiscardStart[:])
	out[16] = boolByte(s.Prefix)
	out[17] = s.FastMask
	out[18] = boolByte(s.ReturnNewline)
	out[19] = s.InputInvert
	out[20] = boolByte(s.OutputInvert)
	out[21] = byte(s.OutputBaud)
	out[22] = s.SchmittMask
	// out[23] reserved, always zero.
	return out
}

// Unmarshal decodes the 24-byte wire form into Settings.
func Unmarshal(buf []byte) (Settings, error) {
	if len(buf) != WireSize {
		return Settings{}, fmt.Errorf("settings: wire form must be %d bytes, got %d", WireSize, len(buf))
	}
	var s Settings
	copy(s.SuppressMask[:], buf[0:8])
	copy(s.DiscardStart[:], buf[8:16])
	s.Prefix = buf[16] != 0
	s.FastMask = buf[17]
	s.ReturnNewline = buf[18] != 0
	s.InputInvert = buf[19]
	s.OutputInvert = buf[20] != 0
	s.OutputBaud = int(buf[21])
	s.SchmittMask = buf[22]
	return s, nil
}

// ToYAML and FromYAML round-trip Settings through the human-editable
// factory-defaults file; this is purely an operator convenience
// layered on top of the canonical 24-byte wire form above.
func (s Settings) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

func FromYAML(buf []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(buf, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
