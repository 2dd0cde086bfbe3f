package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var sizeSuffixes = map[byte]int64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a human-readable size such as "100", "64K", "256M" or
// "1.5G" into bytes. Suffixes are case-insensitive powers of 1024; a
// trailing "B" after a unit ("256MB") is accepted.
func ParseSize(s string) (int64, error) {
	in := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	mult := int64(1)
	if len(s) >= 2 && s[len(s)-1] == 'B' {
		if m, ok := sizeSuffixes[s[len(s)-2]]; ok && m > 1 {
			s = s[:len(s)-1]
		}
	}
	if m, ok := sizeSuffixes[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid size: %q", in)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 || n > math.MaxInt64/mult {
			return 0, fmt.Errorf("size out of range: %q", in)
		}
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid size: %q", in)
	}
	v := f * float64(mult)
	if v >= math.MaxInt64 {
		return 0, fmt.Errorf("size out of range: %q", in)
	}
	return int64(v), nil
}
