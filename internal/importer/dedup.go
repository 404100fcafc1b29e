package importer

// DuplicateFilter tracks identifiers already claimed by the store or by earlier
// rows of the current upload. It is scoped to one import and is not safe for
// concurrent use.
type DuplicateFilter struct {
	claimed map[string]struct{}
}

// NewDuplicateFilter seeds the filter with the identifiers currently stored.
func NewDuplicateFilter(existing []string) *DuplicateFilter {
	claimed := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		if id = NormalizeIdentifier(id); id != "" {
			claimed[id] = struct{}{}
		}
	}
	return &DuplicateFilter{claimed: claimed}
}

// Seen reports whether the identifier is already claimed.
func (f *DuplicateFilter) Seen(id string) bool {
	_, ok := f.claimed[NormalizeIdentifier(id)]
	return ok
}

// Claim records the identifier and returns false when it was already claimed.
func (f *DuplicateFilter) Claim(id string) bool {
	id = NormalizeIdentifier(id)
	if _, ok := f.claimed[id]; ok {
		return false
	}
	f.claimed[id] = struct{}{}
	return true
}

// Len returns the number of claimed identifiers.
func (f *DuplicateFilter) Len() int {
	return len(f.claimed)
}
