package repositories

// Scalar is one equality constraint. Empty values are meaningful: the
// AOP probe matches records whose issue fields are all empty.
type Scalar struct {
	Field string
	Value string
}

// OrGroup is a disjunctive constraint over an embedded list field: the
// record matches when any of Values appears under Field/Attr. A group
// with a single value degrades to plain equality. Groups over different
// fields combine with AND.
type OrGroup struct {
	Field  string
	Attr   string
	Values []string
}

// Criteria is the storage-agnostic dedup query the resolver builds. The
// store translates it to its native query language. Scalars keep
// insertion order so generated queries are deterministic.
type Criteria struct {
	Scalars []Scalar
	Groups  []OrGroup
}

// Equal appends a scalar equality constraint.
func (c *Criteria) Equal(field, value string) *Criteria {
	c.Scalars = append(c.Scalars, Scalar{Field: field, Value: value})
	return c
}

// AnyOf appends a list-field disjunction. Empty groups are dropped.
func (c *Criteria) AnyOf(field, attr string, values []string) *Criteria {
	if len(values) == 0 {
		return c
	}
	c.Groups = append(c.Groups, OrGroup{Field: field, Attr: attr, Values: values})
	return c
}

// ScalarValue returns the value of a scalar constraint and whether it is
// present.
func (c *Criteria) ScalarValue(field string) (string, bool) {
	for _, s := range c.Scalars {
		if s.Field == field {
			return s.Value, true
		}
	}
	return "", false
}
