package types

import "errors"

// Term is one glossary entry: a bolded term bound to its definition.
// Terms are extracted from glossary-tagged documents alongside chunking and
// power exact-definition lookup, which plain similarity search is bad at.
type Term struct {
	Term       string
	Definition string
}

// Validate checks the entry is usable for lookup.
func (t *Term) Validate() error {
	if t.Term == "" {
		return errors.New("term is required")
	}
	return nil
}
