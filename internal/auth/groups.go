package auth

import (
	"github.com/samber/lo"

	"modular-auth/internal/domain"
)

// HasGroupAccess reports whether userGroups overlaps required. Members of the
// admin group pass every check; a user without groups never does.
func HasGroupAccess(required, userGroups []string) bool {
	if len(userGroups) == 0 {
		return false
	}
	allowed := make([]string, 0, len(required)+1)
	allowed = append(allowed, required...)
	allowed = append(allowed, domain.AdminGroup)
	return lo.Some(userGroups, allowed)
}
