package account

import (
	"strings"

	"github.com/hsba/emr/internal/platform/textfold"
)

// Filter keeps users whose username or display name contains query and,
// unless role is empty or "all", whose role equals role.
func Filter(users []*User, query, role string) []*User {
	q := textfold.Fold(query)
	role = strings.TrimSpace(role)
	anyRole := role == "" || strings.EqualFold(role, "all")

	out := make([]*User, 0, len(users))
	for _, u := range users {
		if !anyRole && !strings.EqualFold(u.Role, role) {
			continue
		}
		if q != "" && !textfold.Contains(u.Username, q) && !textfold.Contains(u.Name, q) {
			continue
		}
		out = append(out, u)
	}
	return out
}
