package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	path := writeFile(t, `
storage:
  driver: memory
auth:
  jwt_secret: secret
places:
  auto_approve: true
`)
	t.Setenv("APP_STRIPE_CURRENCY", "eur")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTP.Addr != ":8080" {
		t.Errorf("http.addr: got %q, want :8080", c.HTTP.Addr)
	}
	if c.Scheduler.Interval != time.Hour {
		t.Errorf("scheduler.interval: got %v, want 1h", c.Scheduler.Interval)
	}
	if c.Places.SearchRadius != 5000 {
		t.Errorf("places.search_radius: got %v, want 5000", c.Places.SearchRadius)
	}
	if !c.Places.AutoApprove {
		t.Errorf("places.auto_approve: got false, want true")
	}
	if c.Stripe.Currency != "eur" {
		t.Errorf("stripe.currency: got %q, want eur from env", c.Stripe.Currency)
	}
	if p := c.Policy(); !p.Places.AutoApprove || p.Places.SearchRadius != 5000 {
		t.Errorf("policy: got %+v", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "postgres without dsn",
			body: "auth:\n  jwt_secret: s\n",
			want: []string{"postgres.dsn"},
		},
		{
			name: "unknown driver and missing secret",
			body: "storage:\n  driver: mongo\n",
			want: []string{"storage.driver", "auth.jwt_secret"},
		},
		{
			name: "telegram without chat",
			body: "storage:\n  driver: memory\nauth:\n  jwt_secret: s\ntelegram:\n  token: t\n",
			want: []string{"telegram.admin_chat_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q: want mention of %s", err, w)
				}
			}
		})
	}
}
