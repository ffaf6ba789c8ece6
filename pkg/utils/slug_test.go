package utils

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Orders", "orders"},
		{"Sales DB (EU)", "sales_db_eu"},
		{"public.customer--accounts", "public_customer_accounts"},
		{"__already__", "already"},
		{"2024 Q1.csv", "2024_q1_csv"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
