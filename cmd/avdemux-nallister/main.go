package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/internal"
)

var usg = `Usage of %s:

%s generates a list of nalus with information about timestamps, rai, SEI etc.
Parameter sets are listed when they first appear and whenever they change.
`

func parseOptions() internal.Options {
	opts := internal.Options{ShowStreamInfo: true, ShowNALU: true, ShowStatistics: true}
	flag.IntVar(&opts.MaxNrPictures, "max", 0, "max nr pictures to parse")
	flag.BoolVar(&opts.ShowSEIDetails, "sei", false, "print sei message details")
	flag.BoolVar(&opts.ShowPS, "ps", false, "print parameter sets")
	flag.BoolVar(&opts.VerbosePSInfo, "psverbose", false, "print parsed parameter sets")
	flag.BoolVar(&opts.ShowService, "service", false, "show service information")
	flag.BoolVar(&opts.ShowSCTE35, "scte35", false, "print SCTE-35 cues")
	flag.BoolVar(&opts.ShowSMPTE2038, "smpte2038", false, "print SMPTE-2038 ancillary data")
	flag.BoolVar(&opts.Indent, "indent", false, "indent JSON output")
	flag.StringVar(&opts.Format, "format", "", "force input format (ts or ps), probed if empty")
	flag.StringVar(&opts.LogLevel, "loglevel", "warning", "log level (debug, info, warning, error)")
	flag.BoolVar(&opts.Version, "version", false, "print version")

	flag.Usage = func() {
		parts := strings.Split(os.Args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, usg, name, name)
		fmt.Fprintf(os.Stderr, "\nRun as: %s [options] file.ts|rtsp://url (- for stdin) with options:\n\n", name)
		flag.PrintDefaults()
	}

	flag.Parse()
	return opts
}

func main() {
	o, inFile := internal.ParseParams(parseOptions)
	err := internal.Execute(os.Stdout, o, inFile, internal.ParseAll)
	if err != nil {
		logrus.Fatal(err)
	}
}
