package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func writeCommand(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		filename string
		addr     uint32
		erase    bool
	)
	fs.StringVarP(&filename, "file", "f", "", "input file")
	fs.Uint32VarP(&addr, "addr", "a", 0, "start address")
	fs.BoolVarP(&erase, "erase", "e", false, "erase the covered sectors first")
	fs.Parse(args)

	if filename == "" {
		fatalUsage("input file is required")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "failed to read file")
	}

	return withFlash(func(s *session) error {
		return writeFlash(s, data, addr, erase)
	})
}

func writeFlash(s *session, data []byte, addr uint32, erase bool) error {
	if _, _, err := s.flash.ReadID(); err != nil {
		return errors.Wrap(err, "read flash ID failed")
	}

	if erase && len(data) > 0 {
		sector := s.cfg.Flash.SectorSize
		start := addr / sector * sector
		end := (addr + uint32(len(data)) + sector - 1) / sector * sector
		logrus.WithFields(logrus.Fields{"addr": start, "size": end - start}).Info("erasing")
		if _, err := s.flash.Erase(end-start, start); err != nil {
			return errors.Wrap(err, "erase flash failed")
		}
	}

	n, err := s.flash.Pwrite(data, addr)
	if err != nil {
		return errors.Wrapf(err, "write flash failed after %d bytes", n)
	}
	logrus.WithFields(logrus.Fields{"addr": addr, "bytes": n}).Info("written")
	return nil
}
