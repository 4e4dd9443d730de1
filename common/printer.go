package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// JsonPrinter writes one JSON document per line. The first error is kept and
// later prints are skipped.
type JsonPrinter struct {
	W        io.Writer
	Indent   bool
	AccError error
}

// Print writes data when show is set.
func (p *JsonPrinter) Print(data any, show bool) {
	if !show || p.AccError != nil {
		return
	}
	enc := json.NewEncoder(p.W)
	if p.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		p.AccError = fmt.Errorf("printing %T: %w", data, err)
	}
}

func (p *JsonPrinter) Error() error {
	return p.AccError
}

// PsInfo is the JSON view of one parameter set.
type PsInfo struct {
	PID          uint16 `json:"pid"`
	ParameterSet string `json:"parameterSet"`
	Nr           uint32 `json:"nr"`
	Hex          string `json:"hex"`
	Length       int    `json:"length"`
	Details      any    `json:"details,omitempty"`
}

// PrintPS prints a parameter set, with its parsed form when verbose.
func (p *JsonPrinter) PrintPS(pid uint16, psKind string, nr uint32, ps []byte, details any, verbose bool, show bool) {
	info := PsInfo{PID: pid, ParameterSet: psKind, Nr: nr, Hex: hex.EncodeToString(ps), Length: len(ps)}
	if verbose {
		info.Details = details
	}
	p.Print(info, show)
}
