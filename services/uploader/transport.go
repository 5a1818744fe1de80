package uploader

import (
	"context"
	"errors"
	"strconv"
)

// Transport failure codes. They are negative so they never collide with an
// HTTP status, and numbered the way the scale firmware always reported them.
const (
	CodeRefused      = -1
	CodeNotConnected = -4
	CodeLost         = -5
	CodeReadTimeout  = -11
	CodeTLS          = -12
	CodeBegin        = -13
)

var errBegin = errors.New("uploader: cannot build request")

// CodeText is the human-readable form of a non-positive code.
func CodeText(code int) string {
	switch code {
	case CodeRefused:
		return "connection refused"
	case CodeNotConnected:
		return "not connected"
	case CodeLost:
		return "connection lost"
	case CodeReadTimeout:
		return "read timeout"
	case CodeTLS:
		return "tls handshake failed"
	case CodeBegin:
		return "begin failed"
	case 0:
		return ""
	}
	return "error " + strconv.Itoa(code)
}

// Classify maps a transport error onto a negative code.
func Classify(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errBegin):
		return CodeBegin
	case errors.Is(err, context.DeadlineExceeded):
		return CodeReadTimeout
	}
	return classifyNet(err)
}
