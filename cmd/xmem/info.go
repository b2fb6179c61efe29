package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"periph.io/x/host/v3/ftdi"
)

func infoCommand(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	bridge := fs.Bool("ftdi", false, "also print FT2232H details")
	fs.Parse(args)

	return withFlash(func(s *session) error {
		return printInfo(s, *bridge)
	})
}

func printInfo(s *session, bridge bool) error {
	id, name, err := s.flash.ReadID()
	if err != nil {
		return errors.Wrap(err, "read flash ID failed")
	}
	if name == "" {
		name = "unknown"
	}
	sr, err := s.flash.ReadStatus()
	if err != nil {
		return errors.Wrap(err, "read flash status register failed")
	}
	fmt.Printf("Flash ID:        %X (%s)\n", id, name)
	fmt.Printf("Size:            %d bytes\n", s.flash.Size())
	fmt.Printf("Status:          %s\n", sr)

	if !bridge {
		return nil
	}
	if s.dev == nil || s.dev.FTDI == nil {
		logrus.Warn("not an FTDI bus")
		return nil
	}
	ft := s.dev.FTDI

	// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
	i := ftdi.Info{}
	ft.Info(&i)
	fmt.Printf("Type:            %s\n", i.Type)
	fmt.Printf("Vendor ID:       %#04x\n", i.VenID)
	fmt.Printf("Device ID:       %#04x\n", i.DevID)

	ee := ftdi.EEPROM{}
	if err := ft.EEPROM(&ee); err != nil {
		return errors.Wrap(err, "failed to read EEPROM")
	}
	fmt.Printf("Manufacturer:    %s\n", ee.Manufacturer)
	fmt.Printf("Desc:            %s\n", ee.Desc)
	fmt.Printf("Serial:          %s\n", ee.Serial)

	for _, p := range ft.Header() {
		fmt.Printf("%s: %s\n", p, p.Function())
	}
	return nil
}
