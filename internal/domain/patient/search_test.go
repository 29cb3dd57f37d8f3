package patient

import "testing"

func TestFilter(t *testing.T) {
	patients := []*Patient{
		{ID: "BN001", FullName: "Nguyễn Văn An", CCCD: "001090000001"},
		{ID: "BN002", FullName: "Trần Thị Bình", InsuranceNumber: "DN4010012345"},
		{ID: "BN003", FullName: "NGUYỄN THỊ CÚC"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"BN001", "BN002", "BN003"}},
		{"  nguyễn ", []string{"BN001", "BN003"}},
		{"bn002", []string{"BN002"}},
		{"0010900", []string{"BN001"}},
		{"dn401", []string{"BN002"}},
		{"nguyen", nil},
	}
	for _, tt := range tests {
		got := Filter(patients, tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("Filter(%q) returned %d patients, want %d", tt.query, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("Filter(%q)[%d] = %s, want %s", tt.query, i, got[i].ID, tt.want[i])
			}
		}
	}
}
