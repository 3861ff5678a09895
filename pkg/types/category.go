package types

import "strings"

// Category represents the declared content kind of a source document.
// It selects the chunking strategy; it never changes how a document is read.
type Category string

const (
	CategoryGlossary  Category = "glossary"
	CategoryKnowledge Category = "knowledge"
	CategoryDoc       Category = "doc"
	CategoryCode      Category = "code"
	CategoryContract  Category = "contract"
	CategoryScript    Category = "script"
	CategoryPlugin    Category = "plugin"
	CategoryOther     Category = "other"
)

// AllCategories lists every valid category in declaration order.
var AllCategories = []Category{
	CategoryGlossary,
	CategoryKnowledge,
	CategoryDoc,
	CategoryCode,
	CategoryContract,
	CategoryScript,
	CategoryPlugin,
	CategoryOther,
}

// ParseCategory normalizes a raw tag into a Category.
// Unknown or empty tags map to CategoryOther so that mis-tagged sources
// degrade to the default chunking strategy instead of failing.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllCategories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Valid reports whether the category is one of the closed set.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
