package domain

import "testing"

func TestCheckRolesAndScopes(t *testing.T) {
	tests := []struct {
		name           string
		userRoles      []string
		userScopes     []string
		requiredRoles  [][]string
		requiredScopes [][]string
		want           bool
	}{
		{
			name: "no requirements always passes",
			want: true,
		},
		{
			name:          "single role group satisfied",
			userRoles:     []string{"agentverse-admin"},
			requiredRoles: [][]string{{"agentverse-admin"}},
			want:          true,
		},
		{
			name:          "single role group missing",
			userRoles:     []string{"agentverse-user"},
			requiredRoles: [][]string{{"agentverse-admin"}},
			want:          false,
		},
		{
			name:          "and-group requires every member",
			userRoles:     []string{"reader"},
			requiredRoles: [][]string{{"reader", "writer"}},
			want:          false,
		},
		{
			name:          "and-group fully present",
			userRoles:     []string{"writer", "reader", "extra"},
			requiredRoles: [][]string{{"reader", "writer"}},
			want:          true,
		},
		{
			name:          "or across groups picks any satisfied group",
			userRoles:     []string{"auditor"},
			requiredRoles: [][]string{{"reader", "writer"}, {"auditor"}},
			want:          true,
		},
		{
			name:           "both dimensions must pass",
			userRoles:      []string{"agentverse-admin"},
			userScopes:     []string{"agents.read"},
			requiredRoles:  [][]string{{"agentverse-admin"}},
			requiredScopes: [][]string{{"agents.write"}},
			want:           false,
		},
		{
			name:           "roles and scopes both satisfied",
			userRoles:      []string{"agentverse-admin"},
			userScopes:     []string{"agents.write", "agents.read"},
			requiredRoles:  [][]string{{"agentverse-admin"}},
			requiredScopes: [][]string{{"agents.write"}},
			want:           true,
		},
		{
			name:          "empty claims fail a non-empty requirement",
			requiredRoles: [][]string{{"agentverse-user"}},
			want:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckRolesAndScopes(tt.userRoles, tt.userScopes, tt.requiredRoles, tt.requiredScopes)
			if got != tt.want {
				t.Fatalf("CheckRolesAndScopes() = %v, want %v", got, tt.want)
			}
		})
	}
}
