package rbac

import (
	"testing"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required string
		want     bool
	}{
		{name: "admin -> admin", role: RoleAdmin, required: RoleAdmin, want: true},
		{name: "admin -> records-manager", role: RoleAdmin, required: RoleManager, want: true},
		{name: "admin -> readonly", role: RoleAdmin, required: RoleReadonly, want: true},
		{name: "records-manager -> readonly", role: RoleManager, required: RoleReadonly, want: true},
		{name: "records-manager -> admin", role: RoleManager, required: RoleAdmin, want: false},
		{name: "readonly -> records-manager", role: RoleReadonly, required: RoleManager, want: false},
		{name: "пустая роль", role: "", required: RoleReadonly, want: false},
		{name: "неизвестная роль", role: "superadmin", required: RoleReadonly, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allows(tt.role, tt.required)
			if got != tt.want {
				t.Errorf("Allows(%q, %q) = %v, хотели %v", tt.role, tt.required, got, tt.want)
			}
		})
	}
}

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{name: "пустой набор", roles: nil, want: ""},
		{name: "один admin", roles: []string{RoleAdmin}, want: RoleAdmin},
		{name: "один readonly", roles: []string{RoleReadonly}, want: RoleReadonly},
		{name: "readonly + manager", roles: []string{RoleReadonly, RoleManager}, want: RoleManager},
		{name: "manager + admin", roles: []string{RoleManager, RoleAdmin}, want: RoleAdmin},
		{name: "admin + readonly", roles: []string{RoleAdmin, RoleReadonly}, want: RoleAdmin},
		{name: "все readonly", roles: []string{RoleReadonly, RoleReadonly}, want: RoleReadonly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighestRole(tt.roles)
			if got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestMapGroupsToRole(t *testing.T) {
	mapping := GroupMapping{
		Admin:    []string{"records-admins"},
		Manager:  []string{"records-managers", "legal"},
		Readonly: []string{"records-viewers"},
	}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{
			name:   "группа admins -> admin",
			groups: []string{"records-admins"},
			want:   RoleAdmin,
		},
		{
			name:   "группа legal -> records-manager",
			groups: []string{"legal"},
			want:   RoleManager,
		},
		{
			name:   "группа viewers -> readonly",
			groups: []string{"records-viewers"},
			want:   RoleReadonly,
		},
		{
			name:   "viewers + managers -> records-manager (max)",
			groups: []string{"records-viewers", "records-managers"},
			want:   RoleManager,
		},
		{
			name:   "все группы -> admin (max)",
			groups: []string{"records-viewers", "legal", "records-admins"},
			want:   RoleAdmin,
		},
		{
			name:   "нет совпадений -> пустая строка",
			groups: []string{"other-group"},
			want:   "",
		},
		{
			name:   "пустой список групп -> пустая строка",
			groups: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapGroupsToRole(tt.groups, mapping)
			if got != tt.want {
				t.Errorf("MapGroupsToRole(%v, ...) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleManager, true},
		{RoleReadonly, true},
		{"invalid", false},
		{"", false},
		{"superadmin", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := IsValidRole(tt.role)
			if got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}
