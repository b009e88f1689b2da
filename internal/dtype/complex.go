package dtype

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ComplexValue is the structured form of a complex cell on the wire.
type ComplexValue struct {
	Real float64 `json:"real"`
	Imag float64 `json:"imag"`
}

// ParseComplex reads "a+bj", "a-bj", "bj" or a plain real number. Parentheses
// and an "i" suffix are tolerated. Infinite and NaN parts are rejected since
// they have no JSON representation.
func ParseComplex(s string) (ComplexValue, error) {
	c, err := parseComplex(s)
	if err != nil {
		return ComplexValue{}, err
	}
	if !finite(c.Real) || !finite(c.Imag) {
		return ComplexValue{}, fmt.Errorf("non-finite complex literal %q", s)
	}
	return c, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func parseComplex(s string) (ComplexValue, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	v = strings.ReplaceAll(v, " ", "")
	if v == "" {
		return ComplexValue{}, fmt.Errorf("empty complex literal")
	}
	last := v[len(v)-1]
	if last != 'j' && last != 'J' && last != 'i' {
		re, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ComplexValue{}, fmt.Errorf("invalid complex literal %q", s)
		}
		return ComplexValue{Real: re}, nil
	}
	body := v[:len(v)-1]
	split := -1
	for i := len(body) - 1; i > 0; i-- {
		if (body[i] == '+' || body[i] == '-') && body[i-1] != 'e' && body[i-1] != 'E' {
			split = i
			break
		}
	}
	if split < 0 {
		im, err := parseImag(body)
		if err != nil {
			return ComplexValue{}, fmt.Errorf("invalid complex literal %q", s)
		}
		return ComplexValue{Imag: im}, nil
	}
	re, err := strconv.ParseFloat(body[:split], 64)
	if err != nil {
		return ComplexValue{}, fmt.Errorf("invalid complex literal %q", s)
	}
	im, err := parseImag(body[split:])
	if err != nil {
		return ComplexValue{}, fmt.Errorf("invalid complex literal %q", s)
	}
	return ComplexValue{Real: re, Imag: im}, nil
}

func parseImag(s string) (float64, error) {
	switch s {
	case "", "+":
		return 1, nil
	case "-":
		return -1, nil
	}
	return strconv.ParseFloat(s, 64)
}

// String renders the value as <real><sign><imag>j.
func (c ComplexValue) String() string {
	return FormatComplex(c.Real, c.Imag)
}

// FormatComplex renders a complex pair with "+" for non-negative imaginary
// parts and the number's own sign otherwise, e.g. 3+4j and 3-4j.
func FormatComplex(re, im float64) string {
	if im == 0 {
		im = 0 // drop negative zero
	}
	sign := "+"
	if im < 0 {
		sign = ""
	}
	return formatFloat(re) + sign + formatFloat(im) + "j"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
