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

%s lists the streams of an MPEG-TS, MPEG-PS or RTSP input and, for
transport streams, the service information of the SDT.
`

func parseOptions() internal.Options {
	opts := internal.Options{ShowStreamInfo: true, Indent: true}
	flag.BoolVar(&opts.ShowService, "service", false, "show service information")
	flag.BoolVar(&opts.Indent, "indent", true, "indent JSON output")
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
	err := internal.Execute(os.Stdout, o, inFile, internal.ParseInfo)
	if err != nil {
		logrus.Fatal(err)
	}
}
