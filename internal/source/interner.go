package source

// StringID refers to a string in an Interner. Zero is the empty string.
type StringID uint32

const NoStringID StringID = 0

// Interner deduplicates strings behind stable IDs. Names in the syntax tree
// and symbol table are stored as StringIDs, never as raw strings.
type Interner struct {
	byID  []string
	index map[string]StringID
}

func NewInterner() *Interner {
	return &Interner{
		byID:  []string{""},
		index: map[string]StringID{"": 0},
	}
}

// Intern returns the stable ID for s, allocating one on first use.
func (i *Interner) Intern(s string) StringID {
	if id, ok := i.index[s]; ok {
		return id
	}

	// Copy so the interner never aliases the caller's buffer.
	cpy := string([]byte(s))
	id := StringID(len(i.byID))
	i.byID = append(i.byID, cpy)
	i.index[cpy] = id
	return id
}

// Lookup returns the string for an ID.
func (i *Interner) Lookup(id StringID) (string, bool) {
	if int(id) >= len(i.byID) {
		return "", false
	}
	return i.byID[id], true
}

// MustLookup panics on an invalid ID.
func (i *Interner) MustLookup(id StringID) string {
	s, ok := i.Lookup(id)
	if !ok {
		panic("source: invalid string ID")
	}
	return s
}

// Len returns the number of interned strings, the empty string included.
func (i *Interner) Len() int {
	return len(i.byID)
}

// Snapshot returns a copy of the interned strings, indexable by StringID.
func (i *Interner) Snapshot() []string {
	out := make([]string, len(i.byID))
	copy(out, i.byID)
	return out
}

// NewInternerFromSnapshot rebuilds an interner from a Snapshot. Used when
// loading serialized syntax-tree artifacts.
func NewInternerFromSnapshot(byID []string) *Interner {
	if len(byID) == 0 {
		return NewInterner()
	}
	in := &Interner{
		byID:  byID,
		index: make(map[string]StringID, len(byID)),
	}
	for id, s := range byID {
		if _, ok := in.index[s]; !ok {
			in.index[s] = StringID(id)
		}
	}
	return in
}
