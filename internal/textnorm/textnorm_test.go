package textnorm

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Café", "cafe"},
		{"  CAFÉ Über ", "cafe uber"},
		{"São João", "sao joao"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Café de Flore", "cafe-de-flore"},
		{"  Pizza & Pasta!! ", "pizza-pasta"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
