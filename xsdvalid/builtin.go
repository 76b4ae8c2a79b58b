package xsdvalid

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type primitive int

const (
	anySimple primitive = iota
	stringPrim
	booleanPrim
	decimalPrim
	floatPrim
	datePrim
	dateTimePrim
	base64Prim
	hexPrim
)

type whitespace int

const (
	preserve whitespace = iota
	replace
	collapse
)

// builtin is a predefined XML Schema simple type.
type builtin struct {
	name    string
	prim    primitive
	integer bool
	ws      whitespace
	// Inherent inclusive bounds of the integer family.
	min, max string
}

var builtinTable = []builtin{
	{name: "anySimpleType", prim: anySimple},
	{name: "string", prim: stringPrim},
	{name: "normalizedString", prim: stringPrim, ws: replace},
	{name: "token", prim: stringPrim, ws: collapse},
	{name: "language", prim: stringPrim, ws: collapse},
	{name: "Name", prim: stringPrim, ws: collapse},
	{name: "NCName", prim: stringPrim, ws: collapse},
	{name: "anyURI", prim: stringPrim, ws: collapse},
	{name: "boolean", prim: booleanPrim, ws: collapse},
	{name: "decimal", prim: decimalPrim, ws: collapse},
	{name: "integer", prim: decimalPrim, integer: true, ws: collapse},
	{name: "long", prim: decimalPrim, integer: true, ws: collapse, min: "-9223372036854775808", max: "9223372036854775807"},
	{name: "int", prim: decimalPrim, integer: true, ws: collapse, min: "-2147483648", max: "2147483647"},
	{name: "short", prim: decimalPrim, integer: true, ws: collapse, min: "-32768", max: "32767"},
	{name: "byte", prim: decimalPrim, integer: true, ws: collapse, min: "-128", max: "127"},
	{name: "nonNegativeInteger", prim: decimalPrim, integer: true, ws: collapse, min: "0"},
	{name: "positiveInteger", prim: decimalPrim, integer: true, ws: collapse, min: "1"},
	{name: "nonPositiveInteger", prim: decimalPrim, integer: true, ws: collapse, max: "0"},
	{name: "negativeInteger", prim: decimalPrim, integer: true, ws: collapse, max: "-1"},
	{name: "unsignedLong", prim: decimalPrim, integer: true, ws: collapse, min: "0", max: "18446744073709551615"},
	{name: "unsignedInt", prim: decimalPrim, integer: true, ws: collapse, min: "0", max: "4294967295"},
	{name: "unsignedShort", prim: decimalPrim, integer: true, ws: collapse, min: "0", max: "65535"},
	{name: "unsignedByte", prim: decimalPrim, integer: true, ws: collapse, min: "0", max: "255"},
	{name: "float", prim: floatPrim, ws: collapse},
	{name: "double", prim: floatPrim, ws: collapse},
	{name: "date", prim: datePrim, ws: collapse},
	{name: "dateTime", prim: dateTimePrim, ws: collapse},
	{name: "base64Binary", prim: base64Prim, ws: collapse},
	{name: "hexBinary", prim: hexPrim, ws: collapse},
}

// builtinTypes holds one simple type per builtin, keyed by local name.
var builtinTypes = func() map[string]*simpleType {
	m := make(map[string]*simpleType, len(builtinTable))
	for i := range builtinTable {
		b := &builtinTable[i]
		st := &simpleType{name: b.name, builtin: b, minLength: -1, maxLength: -1}
		for _, bd := range []struct{ facet, raw string }{{minInclusive, b.min}, {maxInclusive, b.max}} {
			if bd.raw == "" {
				continue
			}
			v, _ := b.parse(bd.raw)
			st.bounds = append(st.bounds, bound{facet: bd.facet, raw: bd.raw, val: v})
		}
		m[b.name] = st
	}
	return m
}()

// value is the parsed form of a lexical value, used for ordering and equality.
type value struct {
	num    *big.Rat
	float  float64
	time   time.Time
	length int
}

var (
	integerRE  = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalRE  = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)
	floatRE    = regexp.MustCompile(`^([+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?|-?INF|NaN)$`)
	dateRE     = regexp.MustCompile(`^([0-9]{4})-([0-9]{2})-([0-9]{2})(Z|[+-][0-9]{2}:[0-9]{2})?$`)
	dateTimeRE = regexp.MustCompile(`^([0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2})(\.[0-9]+)?(Z|[+-][0-9]{2}:[0-9]{2})?$`)
)

// parse checks the lexical form of an already normalized value.
func (b *builtin) parse(s string) (value, bool) {
	switch b.prim {
	case anySimple, stringPrim:
		return value{length: utf8.RuneCountInString(s)}, true
	case booleanPrim:
		switch s {
		case "true", "false", "1", "0":
			return value{}, true
		}
		return value{}, false
	case decimalPrim:
		if b.integer {
			if !integerRE.MatchString(s) {
				return value{}, false
			}
		} else if !decimalRE.MatchString(s) {
			return value{}, false
		}
		r, ok := parseDecimal(s)
		return value{num: r}, ok
	case floatPrim:
		if !floatRE.MatchString(s) {
			return value{}, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value{}, false
		}
		return value{float: f}, true
	case datePrim:
		m := dateRE.FindStringSubmatch(s)
		if m == nil {
			return value{}, false
		}
		loc, ok := zone(m[4])
		if !ok {
			return value{}, false
		}
		t, err := time.ParseInLocation("2006-01-02", m[1]+"-"+m[2]+"-"+m[3], loc)
		if err != nil {
			return value{}, false
		}
		return value{time: t}, true
	case dateTimePrim:
		m := dateTimeRE.FindStringSubmatch(s)
		if m == nil {
			return value{}, false
		}
		loc, ok := zone(m[3])
		if !ok {
			return value{}, false
		}
		t, err := time.ParseInLocation("2006-01-02T15:04:05", m[1], loc)
		if err != nil {
			return value{}, false
		}
		if m[2] != "" {
			frac, _ := strconv.ParseFloat("0"+m[2], 64)
			t = t.Add(time.Duration(frac * float64(time.Second)))
		}
		return value{time: t}, true
	case base64Prim:
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
		if err != nil {
			return value{}, false
		}
		return value{length: len(raw)}, true
	case hexPrim:
		raw, err := hex.DecodeString(s)
		if err != nil {
			return value{}, false
		}
		return value{length: len(raw)}, true
	}
	return value{}, false
}

func parseDecimal(s string) (*big.Rat, bool) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	if neg {
		s = "-" + s
	}
	return new(big.Rat).SetString(s)
}

func zone(tz string) (*time.Location, bool) {
	switch tz {
	case "", "Z":
		return time.UTC, true
	}
	h, err1 := strconv.Atoi(tz[1:3])
	m, err2 := strconv.Atoi(tz[4:6])
	if err1 != nil || err2 != nil || h > 14 || m > 59 || (h == 14 && m != 0) {
		return nil, false
	}
	off := (h*60 + m) * 60
	if tz[0] == '-' {
		off = -off
	}
	return time.FixedZone(tz, off), true
}

// ordered reports whether values of b have a total order for bound facets.
func (b *builtin) ordered() bool {
	switch b.prim {
	case decimalPrim, floatPrim, datePrim, dateTimePrim:
		return true
	}
	return false
}

// hasLength reports whether length facets apply to b.
func (b *builtin) hasLength() bool {
	switch b.prim {
	case anySimple, stringPrim, base64Prim, hexPrim:
		return true
	}
	return false
}

// compare orders two values of b. It returns 2 when they are incomparable.
func (b *builtin) compare(x, y value) int {
	switch b.prim {
	case decimalPrim:
		return x.num.Cmp(y.num)
	case floatPrim:
		if math.IsNaN(x.float) || math.IsNaN(y.float) {
			return 2
		}
		switch {
		case x.float < y.float:
			return -1
		case x.float > y.float:
			return 1
		}
		return 0
	case datePrim, dateTimePrim:
		return x.time.Compare(y.time)
	}
	return 2
}

// equal reports whether two lexical values of b denote the same value.
func (b *builtin) equal(x, y string) bool {
	if b.ordered() {
		xv, ok1 := b.parse(x)
		yv, ok2 := b.parse(y)
		return ok1 && ok2 && b.compare(xv, yv) == 0
	}
	if b.prim == booleanPrim {
		return (x == "true" || x == "1") == (y == "true" || y == "1")
	}
	return x == y
}

func normalize(s string, ws whitespace) string {
	if ws == preserve {
		return s
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
	if ws == replace {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

const (
	minInclusive = "minInclusive"
	maxInclusive = "maxInclusive"
	minExclusive = "minExclusive"
	maxExclusive = "maxExclusive"
)

// bound is an ordering facet.
type bound struct {
	facet string
	raw   string
	val   value
}

func (bd bound) allows(b *builtin, v value) bool {
	c := b.compare(v, bd.val)
	if c == 2 {
		return false
	}
	switch bd.facet {
	case minInclusive:
		return c >= 0
	case maxInclusive:
		return c <= 0
	case minExclusive:
		return c > 0
	case maxExclusive:
		return c < 0
	}
	return true
}

type pattern struct {
	raw string
	re  *regexp.Regexp
}

// compilePattern translates an XML Schema pattern into an anchored regexp.
// Patterns always match the whole value.
func compilePattern(p string) (pattern, error) {
	re, err := regexp.Compile(`^(?:` + p + `)$`)
	if err != nil {
		return pattern{}, fmt.Errorf("invalid pattern %q: %w", p, err)
	}
	return pattern{raw: p, re: re}, nil
}

// simpleType is a builtin or a restriction of another simple type.
type simpleType struct {
	name    string
	builtin *builtin
	base    *simpleType

	patterns  []pattern
	enums     []string
	minLength int
	maxLength int
	bounds    []bound
}

// check validates a raw text value and returns the message of the first
// violation, or "" when the value is valid.
func (st *simpleType) check(raw string) string {
	s := normalize(raw, st.builtin.ws)
	chain := st.chain()
	for _, t := range chain {
		if len(t.patterns) == 0 {
			continue
		}
		matched := false
		for _, p := range t.patterns {
			if p.re.MatchString(s) {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Sprintf("cvc-pattern-valid: Value '%s' is not facet-valid with respect to pattern '%s' for type '%s'.",
				s, t.patterns[0].raw, t.name)
		}
	}
	v, ok := st.builtin.parse(s)
	if !ok {
		return fmt.Sprintf("cvc-datatype-valid.1.2.1: '%s' is not a valid value for '%s'.", s, st.builtin.name)
	}
	for _, t := range chain {
		if len(t.enums) > 0 && !t.inEnum(s) {
			return fmt.Sprintf("cvc-enumeration-valid: Value '%s' is not facet-valid with respect to enumeration '[%s]'. It must be a value from the enumeration.",
				s, strings.Join(t.enums, ", "))
		}
		if t.minLength >= 0 && v.length < t.minLength {
			return fmt.Sprintf("cvc-minLength-valid: Value '%s' with length = '%d' is not facet-valid with respect to minLength '%d' for type '%s'.",
				s, v.length, t.minLength, t.name)
		}
		if t.maxLength >= 0 && v.length > t.maxLength {
			return fmt.Sprintf("cvc-maxLength-valid: Value '%s' with length = '%d' is not facet-valid with respect to maxLength '%d' for type '%s'.",
				s, v.length, t.maxLength, t.name)
		}
		for _, bd := range t.bounds {
			if !bd.allows(st.builtin, v) {
				return fmt.Sprintf("cvc-%s-valid: Value '%s' is not facet-valid with respect to %s '%s' for type '%s'.",
					bd.facet, s, bd.facet, bd.raw, t.name)
			}
		}
	}
	return ""
}

func (st *simpleType) inEnum(s string) bool {
	for _, e := range st.enums {
		if st.builtin.equal(s, e) {
			return true
		}
	}
	return false
}

// chain returns the derivation chain from the builtin down to st.
func (st *simpleType) chain() []*simpleType {
	var out []*simpleType
	for t := st; t != nil; t = t.base {
		out = append(out, t)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
