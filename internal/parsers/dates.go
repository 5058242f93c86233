// Package parsers normalizes the loose, dynamically-typed payloads from the
// source API into the value objects the rest of the pipeline consumes (spec
// §4.3, §9: "keep a narrow ingestion boundary ... the rest of the system
// must never see the loose form").
package parsers

import (
	"fmt"
	"strings"
	"time"
)

// Domain date tokens have fixed widths; anything else is rejected rather
// than guessed at, per spec §4.3.
const (
	dateOnlyLen     = 8  // YYYYMMDD
	dateTimeLen     = 16 // YYYYMMDDTHHMMSSZ
)

// ParseWireDate parses a domain date token in either YYYYMMDD or
// YYYYMMDDTHHMMSSZ form into UTC. An empty string returns the zero time with
// ok=false (caller treats the field as null per spec §4.3 "every missing
// field becomes null").
func ParseWireDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	switch len(raw) {
	case dateOnlyLen:
		t, err := time.Parse("20060102", raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parsers: invalid YYYYMMDD date %q: %w", raw, err)
		}
		return t.UTC(), true, nil
	case dateTimeLen:
		t, err := time.Parse("20060102T150405Z", raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parsers: invalid YYYYMMDDTHHMMSSZ date %q: %w", raw, err)
		}
		return t.UTC(), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("parsers: date %q has unsupported width %d", raw, len(raw))
	}
}

// CLIDateToWire converts a CLI-facing YYYY-MM-DD date to the wire format
// (YYYYMMDD) by stripping dashes, per spec §4.3.
func CLIDateToWire(cli string) (string, error) {
	cli = strings.TrimSpace(cli)
	if len(cli) != 10 || cli[4] != '-' || cli[7] != '-' {
		return "", fmt.Errorf("parsers: invalid CLI date %q, expected YYYY-MM-DD", cli)
	}
	wire := strings.ReplaceAll(cli, "-", "")
	if _, _, err := ParseWireDate(wire); err != nil {
		return "", err
	}
	return wire, nil
}
