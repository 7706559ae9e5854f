// Package ioline is the serial transport and soft-UART sampling layer.
// It opens a real tty with github.com/pkg/term, tunes VMIN/VTIME with a raw termios ioctl the term package does not
// expose, and re-serialises whatever byte stream it reads - real tty
// or a creack/pty test harness - into the 4x-oversampled bit stream
// the core package's bit parser actually consumes, so that parser
// runs against production traffic rather than only unit tests.
package ioline

import (
	"fmt"
	"unsafe"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

/*-------------------------------------------------------------------
 *
 * Name:	Open
 *
 * Purpose:	Open a serial port: translate an unsupported baud down
 *		to 4800 rather than failing, and leave the speed alone
 *		when baud is 0.
 *
 *--------------------------------------------------------------*/

var supportedBaud = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true, 115200: true,
}

// Port is a thin wrapper over *term.Term adding the VMIN/VTIME tuning
// the embedded side's interrupt-driven UART gives for free.
type Port struct {
	t *term.Term
}

// Open opens device at baud (0 leaves the current speed alone) and
// puts it in raw mode with VMIN=1, VTIME=0: block for at least one
// byte, no inter-byte timeout.
func Open(device string, baud int) (*Port, error) {
	t, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("ioline: open %s: %w", device, err)
	}

	switch baud {
	case 0:
	default:
		if !supportedBaud[baud] {
			baud = 4800
		}
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("ioline: set speed: %w", err)
		}
	}

	if err := setVMinVTime(t.Fd(), 1, 0); err != nil {
		t.Close()
		return nil, fmt.Errorf("ioline: tune termios: %w", err)
	}

	return &Port{t: t}, nil
}

// Write sends data; a short write without an error is treated as an
// error since the caller has no way to retry a partial serial write.
func (p *Port) Write(data []byte) (int, error) {
	n, err := p.t.Write(data)
	if err != nil {
		return n, fmt.Errorf("ioline: write: %w", err)
	}
	if n != len(data) {
		return n, fmt.Errorf("ioline: short write")
	}
	return n, nil
}

// ReadByte blocks until exactly one byte is available.
func (p *Port) ReadByte() (byte, error) {
	buf := make([]byte, 1)
	n, err := p.t.Read(buf)
	if n != 1 {
		if err == nil {
			err = fmt.Errorf("ioline: short read")
		}
		return 0, err
	}
	return buf[0], nil
}

// Close releases the underlying descriptor.
func (p *Port) Close() error {
	return p.t.Close()
}

// Fd exposes the raw descriptor for select/poll-based harnesses.
func (p *Port) Fd() uintptr {
	return p.t.Fd()
}

// setVMinVTime performs the raw TCGETS/TCSETS ioctl round trip that
// github.com/pkg/term does not surface, so VMIN/VTIME can be set
// directly on the underlying file descriptor.
func setVMinVTime(fd uintptr, vmin, vtime byte) error {
	var attrs unix.Termios
	if err := ioctlTermios(fd, unix.TCGETS, &attrs); err != nil {
		return err
	}
	attrs.Cc[unix.VMIN] = vmin
	attrs.Cc[unix.VTIME] = vtime
	return ioctlTermiosSet(fd, unix.TCSETS, &attrs)
}

func ioctlTermios(fd uintptr, req uint, out *unix.Termios) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(out)))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlTermiosSet(fd uintptr, req uint, in *unix.Termios) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(in)))
	if errno != 0 {
		return errno
	}
	return nil
}
