package patient

import (
	"fmt"
	"time"

	"github.com/hsba/emr/internal/platform/formstate"
)

// SetField edits one field of a patient form.
type SetField struct {
	Path  formstate.Path
	Value any
}

var addressParts = map[string]bool{
	"street":   true,
	"ward":     true,
	"district": true,
	"province": true,
}

// Reduce applies a to state without mutating it. A nil state yields nil.
// Setting dob recomputes age when the new date parses; any address part
// recomputes address.
func Reduce(state *Patient, a SetField, now time.Time) (*Patient, error) {
	if state == nil {
		return nil, nil
	}
	switch a.Path.String() {
	case "id", "address", "createdAt", "updatedAt":
		return nil, fmt.Errorf("%w: %s is read-only", formstate.ErrInvalidPath, a.Path)
	}

	next, err := formstate.SetIn(state, a.Path, a.Value)
	if err != nil {
		return nil, err
	}
	if len(a.Path) != 1 {
		return next, nil
	}

	switch key := a.Path.Last(); {
	case key == "dob":
		if age, ok := AgeFromDOB(next.DOB, now); ok {
			next.Age = age
		}
	case addressParts[key]:
		next.Address = JoinAddress(next.Street, next.Ward, next.District, next.Province)
	}
	return next, nil
}
