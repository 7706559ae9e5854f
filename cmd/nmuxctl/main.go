// Command nmuxctl is a thin client for the configuration dialogue: it
// opens a serial line to a running nmuxd, sends each command given on
// the command line in turn, prints each reply, and exits - a small
// standalone tool that speaks one
// device's line protocol and nothing else.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bjarnek44/nmeamux/internal/ioline"
)

func main() {
	device := pflag.StringP("device", "d", "", "Serial device nmuxd's configuration pin is wired to.")
	baud := pflag.IntP("baud", "b", 9600, "Baud rate for the configuration line.")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s -d <device> [-b baud] <command> [command...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nCommands follow the one-letter dialogue grammar, e.g.:\n")
		fmt.Fprintf(os.Stderr, "  F07      set the fast-channel mask to 0x07\n")
		fmt.Fprintf(os.Stderr, "  B1       set output baud to 38,400\n")
		fmt.Fprintf(os.Stderr, "  P        print current settings\n")
		fmt.Fprintf(os.Stderr, "  G        print diagnostics\n")
		fmt.Fprintf(os.Stderr, "  S        save current settings to the user block\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help || *device == "" || pflag.NArg() == 0 {
		pflag.Usage()
		if *device == "" || pflag.NArg() == 0 {
			os.Exit(2)
		}
		os.Exit(0)
	}

	port, err := ioline.Open(*device, *baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nmuxctl: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	reader := bufio.NewReader(portReader{port})
	for _, cmd := range pflag.Args() {
		if err := sendCommand(port, reader, cmd); err != nil {
			fmt.Fprintf(os.Stderr, "nmuxctl: %s: %v\n", cmd, err)
			os.Exit(1)
		}
	}
}

// sendCommand writes one command line, then reads and prints lines
// from the reply until the terminal Ok/Error line, matching the
// multi-line P/G replies internal/dialogue.Dialogue.Run produces.
func sendCommand(port *ioline.Port, reader *bufio.Reader, cmd string) error {
	if _, err := port.Write([]byte(cmd + "\n")); err != nil {
		return err
	}
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fmt.Print(line)
		}
		if err != nil {
			return err
		}
		if line == "Ok\n" {
			return nil
		}
		if line == "Error\n" {
			return fmt.Errorf("device rejected command")
		}
	}
}

// portReader adapts ioline.Port's ReadByte to io.Reader for bufio.
type portReader struct{ p *ioline.Port }

func (r portReader) Read(buf []byte) (int, error) {
	b, err := r.p.ReadByte()
	if err != nil {
		return 0, err
	}
	buf[0] = b
	return 1, nil
}
