package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/internal"
)

var usg = `Usage of %s:

%s remuxes an MPEG-TS, MPEG-PS or RTSP input into an MPEG-TS, dropping the
chosen stream ids. PIDs of a transport stream input are kept.
Drop nothing if an empty list is specified (by default). PAT(0) must not be dropped.
`

func parseOptions() internal.Options {
	opts := internal.Options{ShowStreamInfo: true, Indent: true}
	flag.StringVar(&opts.PidsToDrop, "drop", "", "pids to drop (split by space), e.g. \"256 257\"")
	flag.StringVar(&opts.OutPutTo, "output", "-", "save the TS packets into the given file (filepath) or stdout (-)")
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

func remux(ctx context.Context, w io.Writer, dmx internal.Demuxer, o internal.Options) error {
	outPutToFile := o.OutPutTo != "-"
	var textOutput io.Writer
	var tsOutput io.Writer
	// If we output to ts files, print analysis to stdout
	if outPutToFile {
		if err := internal.RemoveFileIfExists(o.OutPutTo); err != nil {
			return err
		}
		file, err := internal.OpenFileAndAppend(o.OutPutTo)
		if err != nil {
			return err
		}
		tsOutput = file
		textOutput = w
		defer file.Close()
	} else { // If we output to stdout, print analysis to stderr
		tsOutput = w
		textOutput = os.Stderr
	}

	return internal.Remux(ctx, textOutput, tsOutput, dmx, o)
}

func main() {
	o, inFile := internal.ParseParams(parseOptions)
	err := internal.Execute(os.Stdout, o, inFile, remux)
	if err != nil {
		logrus.Fatal(err)
	}
}
