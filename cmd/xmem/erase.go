package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func eraseCommand(args []string) error {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	var (
		addr uint32
		size uint32
		chip bool
	)
	fs.Uint32VarP(&addr, "addr", "a", 0, "start address, sector aligned")
	fs.Uint32VarP(&size, "size", "s", 0, "bytes to erase, a multiple of the sector size")
	fs.BoolVar(&chip, "chip", false, "bulk erase the whole flash")
	fs.Parse(args)

	if !chip && size == 0 {
		fatalUsage("--size or --chip is required")
	}

	return withFlash(func(s *session) error {
		return eraseFlash(s, addr, size, chip)
	})
}

func eraseFlash(s *session, addr, size uint32, chip bool) error {
	if chip {
		if err := s.flash.EraseChip(); err != nil {
			return errors.Wrap(err, "bulk erase flash failed")
		}
		logrus.Info("chip erased")
		return nil
	}
	if _, err := s.flash.Erase(size, addr); err != nil {
		return errors.Wrap(err, "erase flash failed")
	}
	logrus.WithFields(logrus.Fields{"addr": addr, "size": size}).Info("erased")
	return nil
}
