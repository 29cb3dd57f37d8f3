package patient

import (
	"github.com/hsba/emr/internal/platform/textfold"
)

// Filter keeps patients whose name, id, citizen id or insurance number
// contains query, case-insensitively. Order is preserved.
func Filter(patients []*Patient, query string) []*Patient {
	q := textfold.Fold(query)
	out := make([]*Patient, 0, len(patients))
	for _, p := range patients {
		if q == "" || matches(p, q) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p *Patient, q string) bool {
	for _, field := range []string{p.FullName, p.ID, p.CCCD, p.InsuranceNumber} {
		if textfold.Contains(field, q) {
			return true
		}
	}
	return false
}
