package patient

import (
	"strconv"
	"strings"
	"time"
)

// Patient is a registered patient ("bệnh nhân"). Address is derived from
// the four address parts on every write.
type Patient struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	DOB         string `json:"dob"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	Ethnicity   string `json:"ethnicity"`
	Nationality string `json:"nationality"`
	Job         string `json:"job"`
	JobCode     string `json:"jobCode"`
	CCCD        string `json:"cccd"`

	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	Province string `json:"province"`
	Address  string `json:"address"`

	SubjectType     string `json:"subjectType"`
	InsuranceNumber string `json:"insuranceNumber"`
	InsuranceExpiry string `json:"insuranceExpiry"`

	RelativeName    string `json:"relativeName"`
	RelativePhone   string `json:"relativePhone"`
	RelativeAddress string `json:"relativeAddress"`
	Phone           string `json:"phone"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JoinAddress builds the display address from its non-empty parts.
func JoinAddress(street, ward, district, province string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{street, ward, district, province} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

var dobLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"02/01/2006",
}

// BirthYear extracts the year of a date of birth. A bare four digit year
// is accepted.
func BirthYear(dob string) (int, bool) {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return 0, false
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, dob); err == nil {
			return t.Year(), true
		}
	}
	if len(dob) == 4 {
		if y, err := strconv.Atoi(dob); err == nil && y > 0 {
			return y, true
		}
	}
	return 0, false
}

// AgeFromDOB is now.Year() minus the birth year. ok is false when dob does
// not parse or lies in a future year; callers then keep the old age.
func AgeFromDOB(dob string, now time.Time) (int, bool) {
	year, ok := BirthYear(dob)
	if !ok || year > now.Year() {
		return 0, false
	}
	return now.Year() - year, true
}

// normalize recomputes the derived fields.
func (p *Patient) normalize(now time.Time) {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Address = JoinAddress(p.Street, p.Ward, p.District, p.Province)
	if age, ok := AgeFromDOB(p.DOB, now); ok {
		p.Age = age
	}
}
