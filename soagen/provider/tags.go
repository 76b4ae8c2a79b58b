package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"github.com/broady/soagw/soagen/ir"
)

// TagName is the struct tag key carrying structural metadata.
const TagName = "xsd"

// TagProvider is implemented by types that declare metadata for accessor
// properties. Keys are property names; values use the struct tag syntax.
//
//	func (*Customer) XSDTags() map[string]string {
//	    return map[string]string{"Email": "maxLength:254;minOccurs:0"}
//	}
type TagProvider interface {
	XSDTags() map[string]string
}

// tagOptions is the decoded form of an xsd tag. Facet values stay strings so
// they can be copied verbatim into generated documents.
type tagOptions struct {
	Name         string `schema:"name" validate:"omitempty,ncname"`
	Type         string `schema:"type" validate:"omitempty,qname"`
	Order        int    `schema:"order" validate:"gte=0"`
	MinOccurs    string `schema:"minOccurs" validate:"omitempty,number"`
	MaxOccurs    string `schema:"maxOccurs" validate:"omitempty,number|eq=unbounded"`
	Nillable     string `schema:"nillable" validate:"omitempty,boolean"`
	MinLength    string `schema:"minLength" validate:"omitempty,number"`
	MaxLength    string `schema:"maxLength" validate:"omitempty,number"`
	Pattern      string `schema:"pattern" validate:"omitempty,regexp"`
	Enumeration  string `schema:"enumeration" validate:"omitempty,min=1"`
	MinInclusive string `schema:"minInclusive" validate:"omitempty,bound"`
	MaxInclusive string `schema:"maxInclusive" validate:"omitempty,bound"`
	MinExclusive string `schema:"minExclusive" validate:"omitempty,bound"`
	MaxExclusive string `schema:"maxExclusive" validate:"omitempty,bound"`
	Choice       bool   `schema:"choice"`
}

// tagSpec is a parsed tag: decoded options plus the raw pairs in the order
// they were written.
type tagSpec struct {
	opts  tagOptions
	pairs []ir.Facet
}

func (s tagSpec) empty() bool { return len(s.pairs) == 0 }

var occursKeys = map[string]bool{
	ir.MinOccurs: true,
	ir.MaxOccurs: true,
	ir.Nillable:  true,
}

var restrictionKeys = map[string]bool{
	ir.MinLength:    true,
	ir.MaxLength:    true,
	ir.Pattern:      true,
	ir.Enumeration:  true,
	ir.MinInclusive: true,
	ir.MaxInclusive: true,
	ir.MinExclusive: true,
	ir.MaxExclusive: true,
}

// knownOption reports whether key is a recognized option name. Matching is
// exact; the decoder alone would accept any casing.
func knownOption(key string) bool {
	switch key {
	case "name", "type", "order", "choice":
		return true
	}
	return occursKeys[key] || restrictionKeys[key]
}

// occurs returns the occurrence attributes in declaration order.
func (s tagSpec) occurs() ir.Facets {
	var f ir.Facets
	for _, p := range s.pairs {
		if !occursKeys[p.Name] {
			continue
		}
		if p.Name == ir.Nillable {
			p.Value = strings.ToLower(p.Value)
			if p.Value == "1" {
				p.Value = "true"
			} else if p.Value == "0" {
				p.Value = "false"
			}
		}
		f.Set(p.Name, p.Value)
	}
	return f
}

// restrictions returns the value facets in declaration order.
func (s tagSpec) restrictions() ir.Facets {
	var f ir.Facets
	for _, p := range s.pairs {
		if restrictionKeys[p.Name] {
			f = append(f, p)
		}
	}
	return f
}

var (
	ncnameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
	qnameRE  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.\-]*:)?[A-Za-z_][A-Za-z0-9_.\-]*$`)

	tagDecoder  = newTagDecoder()
	tagValidate = newTagValidator()
)

func newTagDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(false)
	return d
}

func newTagValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterAlias("bound", "numeric|datetime=2006-01-02|datetime=2006-01-02T15:04:05")
	_ = v.RegisterValidation("ncname", func(fl validator.FieldLevel) bool {
		return ncnameRE.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("qname", func(fl validator.FieldLevel) bool {
		return qnameRE.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(`^(?:` + fl.Field().String() + `)$`)
		return err == nil
	})
	return v
}

// parseTag parses "key:value;key:value;flag". Values may contain ':' and an
// escaped "\;". A key without a value is a boolean flag.
func parseTag(tag string) (tagSpec, error) {
	var spec tagSpec
	seen := make(map[string]bool)
	values := make(map[string][]string)
	for _, part := range splitTag(tag) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if !ok {
			value = "true"
		}
		if !knownOption(key) {
			return spec, fmt.Errorf("%w: unknown option %q", ErrInvalidTag, key)
		}
		if seen[key] {
			return spec, fmt.Errorf("%w: duplicate option %q", ErrInvalidTag, key)
		}
		seen[key] = true
		spec.pairs = append(spec.pairs, ir.Facet{Name: key, Value: value})
		values[key] = []string{value}
	}
	if spec.empty() {
		return spec, nil
	}
	if err := tagDecoder.Decode(&spec.opts, values); err != nil {
		return spec, fmt.Errorf("%w: %w", ErrInvalidTag, err)
	}
	if err := tagValidate.Struct(&spec.opts); err != nil {
		return spec, fmt.Errorf("%w: %w", ErrInvalidTag, err)
	}
	return spec, nil
}

func splitTag(tag string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(tag); i++ {
		switch {
		case tag[i] == '\\' && i+1 < len(tag) && tag[i+1] == ';':
			cur.WriteByte(';')
			i++
		case tag[i] == ';':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(tag[i])
		}
	}
	return append(parts, cur.String())
}
