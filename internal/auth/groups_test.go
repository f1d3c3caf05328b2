package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasGroupAccess(t *testing.T) {
	tests := []struct {
		name       string
		required   []string
		userGroups []string
		want       bool
	}{
		{name: "overlap", required: []string{"editors", "viewers"}, userGroups: []string{"viewers"}, want: true},
		{name: "no overlap", required: []string{"editors"}, userGroups: []string{"viewers"}, want: false},
		{name: "admin override", required: []string{"editors"}, userGroups: []string{"admin"}, want: true},
		{name: "admin with nothing required", required: nil, userGroups: []string{"admin"}, want: true},
		{name: "no user groups", required: []string{"editors"}, userGroups: nil, want: false},
		{name: "no user groups even for admin page", required: []string{"admin"}, userGroups: []string{}, want: false},
		{name: "nothing required and not admin", required: nil, userGroups: []string{"viewers"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasGroupAccess(tt.required, tt.userGroups))
		})
	}
}

func TestHasGroupAccess_DoesNotMutateRequired(t *testing.T) {
	backing := make([]string, 1, 4)
	backing[0] = "editors"

	HasGroupAccess(backing, []string{"viewers"})
	HasGroupAccess(backing, []string{"viewers"})

	assert.Equal(t, []string{"editors"}, backing)
	assert.Equal(t, "", backing[:2][1], "spare capacity must not be written")
}
