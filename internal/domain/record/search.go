package record

import (
	"sort"
	"strings"
	"time"

	"github.com/hsba/emr/internal/platform/textfold"
)

// FilterAll is the category wildcard.
const FilterAll = "all"

// Filter returns the records whose patient name, id or patient id contains
// query (case-insensitive), restricted to filterType when it is not "all".
// filterType matches either the record type or its department.
//
// With no query and no category the list is returned newest admission
// first; any active filter keeps the original order of the matches.
func Filter(records []*Record, query, filterType string) []*Record {
	q := textfold.Fold(query)
	category := strings.TrimSpace(filterType)
	anyCategory := category == "" || textfold.EqualFold(category, FilterAll)

	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if q != "" && !matchesQuery(r, q) {
			continue
		}
		if !anyCategory && !textfold.EqualFold(r.Type, category) && !textfold.EqualFold(r.Department, category) {
			continue
		}
		out = append(out, r)
	}

	if q == "" && anyCategory {
		SortByAdmissionDesc(out)
	}
	return out
}

func matchesQuery(r *Record, q string) bool {
	return textfold.Contains(r.PatientName, q) ||
		textfold.Contains(r.ID, q) ||
		textfold.Contains(r.PatientID, q)
}

var admissionLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04", "02/01/2006"}

func admissionTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range admissionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortByAdmissionDesc orders records newest admission first. Records with
// an unreadable admission date sort last; ties keep their order.
func SortByAdmissionDesc(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, oki := admissionTime(records[i].AdmissionDate)
		tj, okj := admissionTime(records[j].AdmissionDate)
		if oki != okj {
			return oki
		}
		return ti.After(tj)
	})
}
