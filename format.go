package indiclient

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SexagesimalStyle selects HMS (hours:minutes:seconds) or DMS
// (degrees:minutes:seconds) rendering for the 'm' format verb.
type SexagesimalStyle int

const (
	StyleHMS SexagesimalStyle = iota
	StyleDMS
)

// NumberFormat is the parsed form of a printf-like spec of the shape
// "%[+][0][width][.precision](d|f|g|e|m)" (spec.md §6.2). It is a pure data
// value: parsing it never touches the network or the device store.
type NumberFormat struct {
	Plus      bool
	ZeroPad   bool
	Width     int
	HasWidth  bool
	Precision int
	HasPrecision bool
	Verb      byte
}

var numberFormatPattern = regexp.MustCompile(`^%(\+)?(0)?(\d+)?(?:\.(\d+))?([dfgem])$`)

// ParseNumberFormat parses s into its structured fields.
func ParseNumberFormat(s string) (NumberFormat, error) {
	m := numberFormatPattern.FindStringSubmatch(s)
	if m == nil {
		return NumberFormat{}, fmt.Errorf("invalid number format %q", s)
	}

	var nf NumberFormat
	nf.Plus = m[1] == "+"
	nf.ZeroPad = m[2] == "0"
	if m[3] != "" {
		w, err := strconv.Atoi(m[3])
		if err != nil {
			return NumberFormat{}, fmt.Errorf("invalid width in format %q: %w", s, err)
		}
		nf.Width, nf.HasWidth = w, true
	}
	if m[4] != "" {
		p, err := strconv.Atoi(m[4])
		if err != nil {
			return NumberFormat{}, fmt.Errorf("invalid precision in format %q: %w", s, err)
		}
		nf.Precision, nf.HasPrecision = p, true
	}
	nf.Verb = m[5][0]

	return nf, nil
}

// FormatNumber renders value under the format string s. For the 'd', 'f',
// 'g', 'e' verbs this is a direct analogue of printf; for 'm' it renders a
// sexagesimal value in the requested style, per spec.md §6.2.
func FormatNumber(value float64, s string, style SexagesimalStyle) (string, error) {
	nf, err := ParseNumberFormat(s)
	if err != nil {
		return "", err
	}

	var body string
	switch nf.Verb {
	case 'd':
		body = strconv.FormatInt(int64(value), 10)
	case 'f':
		prec := 6
		if nf.HasPrecision {
			prec = nf.Precision
		}
		body = strconv.FormatFloat(value, 'f', prec, 64)
	case 'g':
		prec := -1
		if nf.HasPrecision {
			prec = nf.Precision
		}
		body = strconv.FormatFloat(value, 'g', prec, 64)
	case 'e':
		prec := 6
		if nf.HasPrecision {
			prec = nf.Precision
		}
		body = strconv.FormatFloat(value, 'e', prec, 64)
	case 'm':
		body = formatSexagesimal(value, nf, style)
	default:
		return "", fmt.Errorf("unsupported format verb %q", nf.Verb)
	}

	if nf.Plus && value >= 0 && nf.Verb != 'm' {
		body = "+" + body
	}

	if nf.HasWidth && len(body) < nf.Width {
		pad := nf.Width - len(body)
		if nf.ZeroPad {
			sign := ""
			digits := body
			if len(digits) > 0 && (digits[0] == '+' || digits[0] == '-') {
				sign, digits = digits[:1], digits[1:]
			}
			body = sign + strings.Repeat("0", pad) + digits
		} else {
			body = strings.Repeat(" ", pad) + body
		}
	}

	return body, nil
}

// formatSexagesimal implements the classic INDI convention that a format's
// precision digit selects how many sexagesimal fields are rendered and with
// what sub-field resolution: 9 -> D:M:S.SS, 8 -> D:M:S, 6 -> D:M, anything
// else falls back to whole D:M:S. This mapping isn't restated verbatim in
// spec.md beyond naming the separators, so it's a deliberate, documented
// choice (see DESIGN.md) rather than a literal transcription of a source.
func formatSexagesimal(value float64, nf NumberFormat, style SexagesimalStyle) string {
	sign := ""
	if style == StyleDMS && value < 0 {
		sign = "-"
	}
	v := math.Abs(value)

	whole := math.Floor(v)
	fracMinutes := (v - whole) * 60
	minutes := math.Floor(fracMinutes)
	fracSeconds := (fracMinutes - minutes) * 60

	degSep, minSep, secSep := "ʰ", "ᵐ", "ˢ"
	if style == StyleDMS {
		degSep, minSep, secSep = "°", "'", "\""
	}

	precision := 8
	if nf.HasPrecision {
		precision = nf.Precision
	}

	switch precision {
	case 6:
		minutes = math.Round(fracMinutes)
		if minutes == 60 {
			whole++
			minutes = 0
		}
		return fmt.Sprintf("%s%d%s%02d%s", sign, int64(whole), degSep, int64(minutes), minSep)
	case 9:
		seconds := fracSeconds
		if seconds >= 59.995 {
			seconds = 0
			minutes++
			if minutes >= 60 {
				minutes = 0
				whole++
			}
		}
		return fmt.Sprintf("%s%d%s%02d%s%05.2f%s", sign, int64(whole), degSep, int64(minutes), minSep, seconds, secSep)
	default:
		seconds := math.Round(fracSeconds)
		if seconds >= 60 {
			seconds = 0
			minutes++
			if minutes >= 60 {
				minutes = 0
				whole++
			}
		}
		return fmt.Sprintf("%s%d%s%02d%s%02d%s", sign, int64(whole), degSep, int64(minutes), minSep, int64(seconds), secSep)
	}
}
