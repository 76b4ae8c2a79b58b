package ir

// Occurrence attribute names.
const (
	MinOccurs = "minOccurs"
	MaxOccurs = "maxOccurs"
	Nillable  = "nillable"
)

// Restriction facet names, in the order the schema language lists them.
const (
	MinLength    = "minLength"
	MaxLength    = "maxLength"
	Pattern      = "pattern"
	Enumeration  = "enumeration"
	MinInclusive = "minInclusive"
	MaxInclusive = "maxInclusive"
	MinExclusive = "minExclusive"
	MaxExclusive = "maxExclusive"
)

// Unbounded is the maxOccurs value for unlimited repetition.
const Unbounded = "unbounded"

// Facet is a single named schema attribute or restriction.
// Enumeration values are stored comma separated.
type Facet struct {
	Name  string
	Value string
}

// Facets is an ordered facet list. Order is preserved into generated output.
type Facets []Facet

// Get returns the value of the named facet.
func (f Facets) Get(name string) (string, bool) {
	for _, x := range f {
		if x.Name == name {
			return x.Value, true
		}
	}
	return "", false
}

// Has reports whether the named facet is present.
func (f Facets) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Set replaces the named facet in place, or appends it.
func (f *Facets) Set(name, value string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Facet{Name: name, Value: value})
}
