package core

/*-------------------------------------------------------------------
 *
 * Name:	Sampler
 *
 * Purpose:	Read the input lines at scheduled sub-bit offsets into
 *		per-channel sample registers.
 *
 * Description:	Each channel owns its own BitSource (backed, in the
 *		hosted build, by internal/ioline's bit-level re-encoding
 *		of whatever byte transport is underneath - a real tty or
 *		a simulated pipe) and its own inversion mask, supporting
 *		optically coupled inverting input stages on a per-channel
 *		basis.
 *
 *		The scheduler, not this type, is responsible for calling
 *		Tick() at a precise, jitter-free cadence: four calls per
 *		bit-time, equally spaced. Any jitter here corrupts the
 *		bit parser's start-bit detection downstream.
 *
 *--------------------------------------------------------------*/

// BitSource produces one sample per call to Tick, advancing its
// internal bit-time clock on every fourth call (see
// internal/ioline.BitStream for the concrete implementation that
// re-serialises a byte stream this way). true means idle/high.
type BitSource interface {
	Tick() bool
}

// Sampler owns the per-channel inversion mask and BitSource wiring.
type Sampler struct {
	sources    [NumChannels]BitSource
	InvertMask byte // bit i set: channel i's input is logically inverted
}

// NewSampler returns a sampler with no sources attached; Attach must
// be called for each channel before Sample is used.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Attach wires channel ch's BitSource.
func (s *Sampler) Attach(ch int, src BitSource) {
	s.sources[ch] = src
}

// Sample reads one sub-bit sample from channel ch, applying the
// configured inversion. Must be called at the scheduler's fixed
// per-column cadence to keep the four samples per bit-time equally
// spaced.
func (s *Sampler) Sample(ch int) bool {
	src := s.sources[ch]
	if src == nil {
		return true // idle if nothing attached
	}
	raw := src.Tick()
	if s.InvertMask&(1<<uint(ch)) != 0 {
		return !raw
	}
	return raw
}
