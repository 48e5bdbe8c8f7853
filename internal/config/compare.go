package config

// Equal reports structural, order-sensitive equality of two documents.
// This is the engine's "no semantic change" check before rewriting.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	if !d.Pre.Equal(other.Pre) || !d.Post.Equal(other.Post) {
		return false
	}
	if len(d.Steps) != len(other.Steps) {
		return false
	}
	for i := range d.Steps {
		if !stepEqual(d.Steps[i], other.Steps[i]) {
			return false
		}
	}
	return true
}

func stepEqual(a, b Step) bool {
	if a.Name != b.Name {
		return false
	}
	if (a.Methods == nil) != (b.Methods == nil) {
		return false
	}
	if len(a.Methods) != len(b.Methods) {
		return false
	}
	for i := range a.Methods {
		if !methodEqual(a.Methods[i], b.Methods[i]) {
			return false
		}
	}
	return true
}

func methodEqual(a, b Method) bool {
	if a.Name != b.Name {
		return false
	}
	if (a.Annotation == nil) != (b.Annotation == nil) {
		return false
	}
	if a.Annotation != nil && *a.Annotation != *b.Annotation {
		return false
	}
	return a.Args.Equal(b.Args)
}

// Clone deep-copies the document. The engine works on a clone so the
// caller's value is never mutated mid-pass.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Pre:   d.Pre.Clone(),
		Post:  d.Post.Clone(),
		Steps: make([]Step, len(d.Steps)),
	}
	for i, s := range d.Steps {
		cs := Step{Name: s.Name}
		if s.Methods != nil {
			cs.Methods = make([]Method, len(s.Methods))
			for j, m := range s.Methods {
				cm := Method{Name: m.Name, Args: m.Args.Clone()}
				if m.Annotation != nil {
					ctrl := *m.Annotation
					cm.Annotation = &ctrl
				}
				cs.Methods[j] = cm
			}
		}
		out.Steps[i] = cs
	}
	return out
}
