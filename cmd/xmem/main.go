package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	configPath = flag.StringP("config", "c", "", "board config file (default: FT2232H iCE board)")
	verbose    = flag.BoolP("verbose", "v", false, "log every flash command")
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

// fatalUsage is for argument errors found before anything is opened.
func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	xmem [-c board.yaml] [-v] <command> [arguments]

Commands:
	info	 print flash ID and status register
	read	 read flash memory
	write	 write flash memory
	erase	 erase flash sectors
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.CommandLine.SetInterspersed(false)
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	logrus.SetOutput(os.Stderr)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "info":
		err = infoCommand(args)
	case "read":
		err = readCommand(args)
	case "write":
		err = writeCommand(args)
	case "erase":
		err = eraseCommand(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
	// commands have torn down their session by now
	if err != nil {
		fatalf("%v", err)
	}
}
