package importer

// RowStatus is the outcome of a single data row.
type RowStatus string

const (
	RowAccepted RowStatus = "accepted"
	RowSkipped  RowStatus = "skipped"
	RowFailed   RowStatus = "failed"
)

// Skip reasons recorded on RowResult.
const (
	ReasonTooFewColumns       = "fewer than 7 columns"
	ReasonMissingIdentifier   = "missing pan number"
	ReasonInvalidIdentifier   = "invalid pan number format"
	ReasonDuplicateIdentifier = "duplicate pan number"
)

// RowResult describes what happened to one row of an upload.
type RowResult struct {
	Row        int       `json:"row"`
	Status     RowStatus `json:"status"`
	Identifier string    `json:"pan_number,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Report collects row results in file order.
type Report struct {
	Rows []RowResult `json:"rows"`
}

// Add appends a row result.
func (r *Report) Add(result RowResult) {
	r.Rows = append(r.Rows, result)
}

// Count returns how many rows ended with the given status.
func (r *Report) Count(status RowStatus) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, row := range r.Rows {
		if row.Status == status {
			n++
		}
	}
	return n
}

// Filter returns the rows with the given status.
func (r *Report) Filter(status RowStatus) []RowResult {
	if r == nil {
		return nil
	}
	out := make([]RowResult, 0)
	for _, row := range r.Rows {
		if row.Status == status {
			out = append(out, row)
		}
	}
	return out
}

// MarkSkipped downgrades an accepted row, used when the store rejects a
// candidate that passed the in-memory checks.
func (r *Report) MarkSkipped(row int, reason string) bool {
	for i := range r.Rows {
		if r.Rows[i].Row == row && r.Rows[i].Status == RowAccepted {
			r.Rows[i].Status = RowSkipped
			r.Rows[i].Reason = reason
			return true
		}
	}
	return false
}
