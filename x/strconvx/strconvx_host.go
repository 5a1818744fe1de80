//go:build !(rp2040 || rp2350)

package strconvx

import "strconv"

// Signature parity with strconv; delegate straight through.

func Atoi(s string) (int, error)         { return strconv.Atoi(s) }
func FormatInt(i int64, base int) string { return strconv.FormatInt(i, base) }
func FormatFloat(f float64, fmt byte, prec, bitSize int) string {
	return strconv.FormatFloat(f, fmt, prec, bitSize)
}
func ParseFloat(s string, bitSize int) (float64, error) { return strconv.ParseFloat(s, bitSize) }
