package importer

import (
	"fmt"
)

// Candidate is a normalised row that passed the identifier checks and is ready
// to be stored.
type Candidate struct {
	Row                int    `json:"-"`
	SerialNo           string `json:"sr_no"`
	Name               string `json:"name"`
	PAN                string `json:"pan_number"`
	RegistrationNumber string `json:"lic_regd_number"`
	Branch             string `json:"branch"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
}

// BuildCandidate applies the row contract shared by every format. The filter is
// claimed only when the row is accepted.
func BuildCandidate(row RawRow, filter *DuplicateFilter) (*Candidate, RowResult) {
	result := RowResult{Row: row.Number}
	if row.Err != nil {
		result.Status = RowFailed
		result.Reason = row.Err.Error()
		return nil, result
	}
	if len(row.Cells) < ColumnCount {
		result.Status = RowSkipped
		result.Reason = ReasonTooFewColumns
		return nil, result
	}

	pan := NormalizeIdentifier(row.Cell(ColPAN))
	result.Identifier = pan
	switch {
	case pan == "":
		result.Status = RowSkipped
		result.Reason = ReasonMissingIdentifier
		return nil, result
	case !ValidIdentifier(pan):
		result.Status = RowSkipped
		result.Reason = ReasonInvalidIdentifier
		return nil, result
	case filter.Seen(pan):
		result.Status = RowSkipped
		result.Reason = ReasonDuplicateIdentifier
		return nil, result
	}

	candidate := &Candidate{
		Row:                row.Number,
		SerialNo:           NormalizeText(row.Cell(ColSerialNo)),
		Name:               NormalizeText(row.Cell(ColName)),
		PAN:                pan,
		RegistrationNumber: NormalizeCompact(row.Cell(ColRegistration)),
		Branch:             NormalizeText(row.Cell(ColBranch)),
		StartDate:          NormalizeDate(row.Cell(ColStartDate)),
		EndDate:            NormalizeDate(row.Cell(ColEndDate)),
	}
	filter.Claim(pan)
	result.Status = RowAccepted
	return candidate, result
}

// Scan runs BuildCandidate over rows in order. A row that panics is recorded as
// failed and the scan moves on.
func Scan(rows []RawRow, filter *DuplicateFilter) ([]Candidate, *Report) {
	if filter == nil {
		filter = NewDuplicateFilter(nil)
	}
	report := &Report{Rows: make([]RowResult, 0, len(rows))}
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		candidate, result := scanRow(row, filter)
		report.Add(result)
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}
	return candidates, report
}

func scanRow(row RawRow, filter *DuplicateFilter) (candidate *Candidate, result RowResult) {
	defer func() {
		if rec := recover(); rec != nil {
			candidate = nil
			result = RowResult{Row: row.Number, Status: RowFailed, Reason: fmt.Sprintf("row %d: %v", row.Number, rec)}
		}
	}()
	return BuildCandidate(row, filter)
}
