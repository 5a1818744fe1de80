// Package decoder turns the scale's serial byte stream into readings.
//
// Bytes accumulate into a bounded line buffer; LF completes a line and CR is
// ignored. Each completed, trimmed, non-empty line is parsed first as a
// strict 11-byte frame ("ww012.345kg") and otherwise by a permissive numeric
// fallback. Overlong lines are dropped whole.
package decoder

import (
	"math"
	"strings"
	"time"

	"sensorbridge-go/types"
	"sensorbridge-go/x/strconvx"
)

const (
	// MaxLine is the largest line (excluding CR and LF) that is parsed.
	MaxLine = 128

	frameLen   = 11
	maxNumeric = 31
	readChunk  = 64
)

// Source is a non-blocking byte source such as a UART. Read must not block
// when Buffered reports zero.
type Source interface {
	Buffered() int
	Read(p []byte) (int, error)
}

// Decoder owns only its line buffer. It is not safe for concurrent use.
type Decoder struct {
	line     []byte
	overflow bool // discarding until the next LF
	scratch  [readChunk]byte

	// Counters for diagnostics.
	Lines     uint32
	Overflows uint32
}

func New() *Decoder {
	return &Decoder{line: make([]byte, 0, MaxLine)}
}

// Feed consumes all of p and returns a reading for every completed line
// that was non-empty after trimming.
func (d *Decoder) Feed(p []byte, now time.Time) []types.Reading {
	var out []types.Reading
	for _, b := range p {
		switch b {
		case '\n':
			if d.overflow {
				d.overflow = false
				d.line = d.line[:0]
				continue
			}
			if r, ok := d.complete(now); ok {
				out = append(out, r)
			}
		case '\r':
		default:
			if d.overflow {
				continue
			}
			if len(d.line) >= MaxLine {
				d.line = d.line[:0]
				d.overflow = true
				d.Overflows++
				continue
			}
			d.line = append(d.line, b)
		}
	}
	return out
}

// Drain reads whatever src has buffered right now and feeds it. Read errors
// end the drain for this call; the bytes already read are still decoded.
func (d *Decoder) Drain(src Source, now time.Time) []types.Reading {
	var out []types.Reading
	for src.Buffered() > 0 {
		n, err := src.Read(d.scratch[:])
		if n > 0 {
			out = append(out, d.Feed(d.scratch[:n], now)...)
		}
		if err != nil || n == 0 {
			break
		}
	}
	return out
}

// Pending reports the number of bytes held for the current partial line.
func (d *Decoder) Pending() int { return len(d.line) }

func (d *Decoder) complete(now time.Time) (types.Reading, bool) {
	s := strings.TrimSpace(string(d.line))
	d.line = d.line[:0]
	if s == "" {
		return types.Reading{}, false
	}
	d.Lines++
	raw, v, ok := ParseLine(s)
	return types.Reading{Raw: raw, Value: v, HasValue: ok, CapturedAt: now}, true
}

// ParseLine parses one trimmed line. raw is the strict frame when one is
// present and the whole line otherwise; ok reports whether value is valid.
func ParseLine(line string) (raw string, value float64, ok bool) {
	if f, ok := findFrame(line); ok {
		if v, err := strconvx.ParseFloat(f[2:9], 64); err == nil && finite(v) {
			return f, v, true
		}
	}
	v, ok := parseLoose(line)
	return line, v, ok
}

// findFrame returns the first window shaped [A-Za-z]{2}ddd.ddd[kK][gG].
func findFrame(s string) (string, bool) {
	for i := 0; i+frameLen <= len(s); i++ {
		if isFrame(s[i : i+frameLen]) {
			return s[i : i+frameLen], true
		}
	}
	return "", false
}

func isFrame(p string) bool {
	return isAlpha(p[0]) && isAlpha(p[1]) &&
		isDigit(p[2]) && isDigit(p[3]) && isDigit(p[4]) &&
		p[5] == '.' &&
		isDigit(p[6]) && isDigit(p[7]) && isDigit(p[8]) &&
		(p[9] == 'k' || p[9] == 'K') && (p[10] == 'g' || p[10] == 'G')
}

// parseLoose keeps digits, a '-' only as the first emitted character and
// the first '.' or ',' (as '.'); everything else is skipped.
func parseLoose(s string) (float64, bool) {
	var buf [maxNumeric]byte
	n := 0
	seenDot, seenDigit := false, false
	for i := 0; i < len(s) && n < maxNumeric; i++ {
		c := s[i]
		switch {
		case isDigit(c):
			buf[n] = c
			n++
			seenDigit = true
		case c == '-' && n == 0:
			buf[n] = c
			n++
		case (c == '.' || c == ',') && !seenDot:
			buf[n] = '.'
			n++
			seenDot = true
		}
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconvx.ParseFloat(string(buf[:n]), 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
