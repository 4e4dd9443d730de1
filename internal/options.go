package internal

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

type Options struct {
	MaxNrPictures  int
	Version        bool
	Indent         bool
	ShowStreamInfo bool
	ShowService    bool
	ShowPS         bool
	VerbosePSInfo  bool
	ShowNALU       bool
	ShowSEIDetails bool
	ShowSCTE35     bool
	ShowSMPTE2038  bool
	ShowStatistics bool
	PidsToDrop     string
	OutPutTo       string
	// Format forces the input format: "ts", "ps" or "" to probe.
	Format   string
	LogLevel string
}

func CreateFullOptions(max int) Options {
	return Options{
		MaxNrPictures:  max,
		ShowStreamInfo: true,
		ShowService:    true,
		ShowPS:         true,
		ShowNALU:       true,
		ShowSEIDetails: true,
		ShowSCTE35:     true,
		ShowSMPTE2038:  true,
		ShowStatistics: true,
	}
}

type OptionParseFunc func() Options

// RunableFunc is the body of a tool, run on an opened input.
type RunableFunc func(ctx context.Context, w io.Writer, dmx Demuxer, o Options) error

// ParsePidsFromString returns the numbers of a space separated list. Words
// that are not numbers are skipped.
func ParsePidsFromString(input string) []int {
	words := strings.Fields(input)
	var pids []int
	for _, word := range words {
		number, err := strconv.Atoi(word)
		if err != nil {
			continue
		}
		pids = append(pids, number)
	}
	return pids
}

// ParseParams parses the command line, handles -version and sets the log level.
func ParseParams(function OptionParseFunc) (o Options, inFile string) {
	o = function()
	name := filepath.Base(os.Args[0])
	if o.Version {
		fmt.Printf("%s version %s\n", name, GetVersion())
		os.Exit(0)
	}
	if o.LogLevel != "" {
		lvl, err := logrus.ParseLevel(o.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		logrus.SetLevel(lvl)
	}
	if len(flag.Args()) < 1 {
		flag.Usage()
		os.Exit(1)
	}
	inFile = flag.Args()[0]
	return o, inFile
}

// Execute opens inFile and runs function on it until done or SIGINT.
func Execute(w io.Writer, o Options, inFile string, function RunableFunc) error {
	// Create a cancellable context in case you want to stop reading packets/data any time you want
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	dmx, closer, err := OpenInput(ctx, inFile, o)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer dmx.Close()

	return function(ctx, w, dmx, o)
}

func RemoveFileIfExists(file string) error {
	err := os.Remove(file)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func OpenFileAndAppend(file string) (*os.File, error) {
	fo, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating output file %w", err)
	}

	return fo, nil
}
