package codec

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/broady/soagw/soagen/ir"
)

// Accepted inbound layouts, canonical layout first.
var (
	dateLayouts     = []string{ir.DateLayout, "2006-01-02Z07:00"}
	dateTimeLayouts = []string{ir.DateTimeLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano}
)

// formatScalar renders a scalar. time.Time values render as xs:date when the
// wire type says so, and as xs:dateTime in UTC otherwise.
func formatScalar(v reflect.Value, kind ir.ScalarKind, wireType string) (string, error) {
	v = indirect(v)
	switch kind {
	case ir.String:
		return v.String(), nil
	case ir.Boolean:
		return strconv.FormatBool(v.Bool()), nil
	case ir.Integer:
		if v.CanInt() {
			return strconv.FormatInt(v.Int(), 10), nil
		}
		return strconv.FormatUint(v.Uint(), 10), nil
	case ir.Decimal:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
	case ir.DateTime:
		t := v.Interface().(time.Time)
		if ir.ScalarFromWireType(wireType) == ir.DateOnly {
			return t.Format(ir.DateLayout), nil
		}
		return t.UTC().Format(ir.DateTimeLayout), nil
	case ir.DateOnly:
		return v.Interface().(ir.Date).Format(ir.DateLayout), nil
	case ir.Base64:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	}
	return "", fmt.Errorf("cannot format %s as %s", v.Type(), kind)
}

// parseScalar parses text into a new value of target.
func parseScalar(text string, kind ir.ScalarKind, wireType string, target reflect.Type) (reflect.Value, error) {
	v := reflect.New(target).Elem()
	trimmed := strings.TrimSpace(text)
	invalid := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, text, kind)
	}

	switch kind {
	case ir.String:
		v.SetString(text)
	case ir.Boolean:
		switch trimmed {
		case "true", "1":
			v.SetBool(true)
		case "false", "0":
			v.SetBool(false)
		default:
			return invalid()
		}
	case ir.Integer:
		if v.CanInt() {
			n, err := strconv.ParseInt(trimmed, 10, target.Bits())
			if err != nil {
				return invalid()
			}
			v.SetInt(n)
		} else {
			n, err := strconv.ParseUint(strings.TrimPrefix(trimmed, "+"), 10, target.Bits())
			if err != nil {
				return invalid()
			}
			v.SetUint(n)
		}
	case ir.Decimal:
		n, err := strconv.ParseFloat(trimmed, target.Bits())
		if err != nil {
			return invalid()
		}
		v.SetFloat(n)
	case ir.DateTime:
		layouts := dateTimeLayouts
		if ir.ScalarFromWireType(wireType) == ir.DateOnly {
			layouts = dateLayouts
		}
		t, ok := parseTime(trimmed, layouts)
		if !ok {
			return invalid()
		}
		v.Set(reflect.ValueOf(t))
	case ir.DateOnly:
		t, ok := parseTime(trimmed, dateLayouts)
		if !ok {
			return invalid()
		}
		v.Set(reflect.ValueOf(ir.Date{Time: t}))
	case ir.Base64:
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
		if err != nil {
			return invalid()
		}
		v.SetBytes(b)
	default:
		return invalid()
	}
	return v, nil
}

func parseTime(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
