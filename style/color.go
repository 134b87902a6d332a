package style

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RGB is a color with 8-bit channels. Alpha is not tracked.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// String renders the color in CSS functional notation.
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Hex renders the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor accepts #rgb, #rrggbb, rgb(...) and rgba(...). It reports false for
// "transparent", fully transparent rgba values and anything it cannot parse.
func ParseColor(raw string) (RGB, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "transparent" {
		return RGB{}, false
	}

	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}

	if strings.HasPrefix(s, "rgba(") || strings.HasPrefix(s, "rgb(") {
		return parseFunctional(s)
	}

	return RGB{}, false
}

// MustParseColor is ParseColor for literals known to be valid.
func MustParseColor(raw string) RGB {
	c, ok := ParseColor(raw)
	if !ok {
		panic("style: invalid color " + strconv.Quote(raw))
	}
	return c
}

func parseHex(h string) (RGB, bool) {
	h = strings.TrimSpace(h)
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return RGB{}, false
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, false
	}
	return RGB{R: uint8(n >> 16), G: uint8(n >> 8 & 0xff), B: uint8(n & 0xff)}, true
}

func parseFunctional(s string) (RGB, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return RGB{}, false
	}
	body := s[open+1 : len(s)-1]

	// Modern syntax: rgb(6 44 110 / 0.5)
	alphaPart := ""
	if slash := strings.IndexByte(body, '/'); slash >= 0 {
		alphaPart = strings.TrimSpace(body[slash+1:])
		body = body[:slash]
	}

	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 4 && alphaPart == "" {
		alphaPart = fields[3]
		fields = fields[:3]
	}
	if len(fields) != 3 {
		return RGB{}, false
	}

	var ch [3]uint8
	for i, f := range fields {
		v, ok := parseChannel(f)
		if !ok {
			return RGB{}, false
		}
		ch[i] = v
	}

	if alphaPart != "" {
		a, ok := parseAlpha(alphaPart)
		if !ok || a <= 0 {
			return RGB{}, false
		}
	}

	return RGB{R: ch[0], G: ch[1], B: ch[2]}, true
}

func parseChannel(f string) (uint8, bool) {
	pct := strings.HasSuffix(f, "%")
	f = strings.TrimSuffix(f, "%")
	v, err := strconv.ParseFloat(f, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if pct {
		v = v * 255 / 100
	}
	return uint8(math.Round(math.Max(0, math.Min(255, v)))), true
}

func parseAlpha(f string) (float64, bool) {
	pct := strings.HasSuffix(f, "%")
	f = strings.TrimSuffix(f, "%")
	v, err := strconv.ParseFloat(f, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if pct {
		v /= 100
	}
	return v, true
}

// Distance is the Euclidean distance between two colors over R, G and B.
func Distance(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
