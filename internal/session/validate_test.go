package session

import "testing"

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"main", true},
		{"work-account", true},
		{"alt_2", true},
		{"", false},
		{"Has-Upper", false},
		{"spaces here", false},
		{"dots.not.ok", false},
		{"abcdefghijklmnopqrstuvwxyz0123456789abcdefghijklmnopqrstuvwxyz012", false}, // 65 chars
	}
	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", tt.name, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", tt.name)
		}
	}
}
