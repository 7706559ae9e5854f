package ioline

import (
	"os"

	"github.com/creack/pty"
)

/*-------------------------------------------------------------------
 *
 * Name:	Harness
 *
 * Purpose:	A loopback pty pair for exercising a channel end to end
 *		without real hardware, standing in for the raw byte
 *		transport a channel BitStream sits on top of.
 *
 *--------------------------------------------------------------*/

// Harness is a master/slave pty pair. Writes to Master appear,
// bit-serialised through a BitStream attached to Slave, as channel
// input; writes to Slave can be read back from Master to observe
// transmitted sentences.
type Harness struct {
	Master *os.File
	Slave  *os.File
}

// NewHarness opens a fresh pty pair.
func NewHarness() (*Harness, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	return &Harness{Master: master, Slave: slave}, nil
}

// Close releases both ends.
func (h *Harness) Close() error {
	errM := h.Master.Close()
	errS := h.Slave.Close()
	if errM != nil {
		return errM
	}
	return errS
}
