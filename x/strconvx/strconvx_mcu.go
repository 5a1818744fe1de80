//go:build rp2040 || rp2350

package strconvx

// Minimal helpers with strconv signatures. FormatFloat only renders the
// fixed-point 'f' form; ParseFloat accepts [+-]digits[.digits].

func Atoi(s string) (int, error) {
	if len(s) == 0 {
		return 0, parseError{}
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 {
		return 0, parseError{}
	}
	var v int
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, parseError{}
		}
		v = v*10 + int(c-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

func FormatInt(i int64, base int) string {
	if base < 2 || base > 36 {
		base = 10
	}
	if i < 0 {
		return "-" + formatUint(uint64(-i), base)
	}
	return formatUint(uint64(i), base)
}

func formatUint(u uint64, base int) string {
	if u == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [64]byte
	i := len(buf)
	b := uint64(base)
	for u > 0 {
		i--
		buf[i] = digits[u%b]
		u /= b
	}
	return string(buf[i:])
}

type parseError struct{}

func (parseError) Error() string { return "invalid syntax" }

func FormatFloat(f float64, _ byte, prec, _ int) string {
	if f != f {
		return "NaN"
	}
	if prec < 0 {
		prec = 6
	}
	neg := f < 0
	if neg {
		f = -f
	}
	if f > 1<<63 {
		if neg {
			return "-Inf"
		}
		return "+Inf"
	}
	pow := uint64(1)
	for i := 0; i < prec; i++ {
		pow *= 10
	}
	intp := uint64(f)
	fracN := uint64((f-float64(intp))*float64(pow) + 0.5)
	if fracN >= pow { // rounding carried into the integer part
		intp++
		fracN -= pow
	}

	out := formatUint(intp, 10)
	if prec > 0 {
		fs := formatUint(fracN, 10)
		pad := make([]byte, prec-len(fs))
		for i := range pad {
			pad[i] = '0'
		}
		out += "." + string(pad) + fs
	}
	if neg && (intp != 0 || fracN != 0) {
		out = "-" + out
	}
	return out
}

func ParseFloat(s string, _ int) (float64, error) {
	if len(s) == 0 {
		return 0, parseError{}
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	var v float64
	var i, digits int
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		v = v*10 + float64(s[i]-'0')
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		scale := 1.0
		var frac float64
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			frac = frac*10 + float64(s[i]-'0')
			scale *= 10
			i++
			digits++
		}
		v += frac / scale
	}
	if i != len(s) || digits == 0 {
		return 0, parseError{}
	}
	if neg {
		v = -v
	}
	return v, nil
}
