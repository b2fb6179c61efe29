package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

func readCommand(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		addr    uint32
		nread   int
		outFile string
	)
	fs.Uint32VarP(&addr, "addr", "a", 0, "start address")
	fs.IntVarP(&nread, "count", "n", 256, "number of bytes to read (-1: to end of flash)")
	fs.StringVarP(&outFile, "out", "o", "", "output file (default: hexdump)")
	fs.Parse(args)

	return withFlash(func(s *session) error {
		data, err := readFlash(s, addr, nread)
		if err != nil {
			return err
		}
		if outFile == "" {
			fmt.Print(hex.Dump(data))
			return nil
		}
		return errors.Wrap(os.WriteFile(outFile, data, 0644), "write file failed")
	})
}

// readFlash reads n bytes at addr, or up to the end of the chip for n < 0.
func readFlash(s *session, addr uint32, n int) ([]byte, error) {
	if _, _, err := s.flash.ReadID(); err != nil {
		return nil, errors.Wrap(err, "read flash ID failed")
	}
	if n < 0 {
		if addr > s.flash.Size() {
			return nil, errors.Errorf("address %#x is beyond the %d byte flash", addr, s.flash.Size())
		}
		n = int(s.flash.Size() - addr)
	}

	data := make([]byte, n)
	if _, err := s.flash.Pread(data, addr); err != nil {
		return nil, errors.Wrap(err, "read flash failed")
	}
	return data, nil
}
