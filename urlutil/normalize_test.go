package urlutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/page#section", "https://example.com/page"},
		{"https://example.com/page/#top", "https://example.com/page"},
		{"https://example.com/about/", "https://example.com/about"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/search?q=foo&a=1", "https://example.com/search?q=foo&a=1"},
		{"HTTPS://Example.Com/Page", "https://example.com/Page"},
		{"http://example.com:80/page", "http://example.com/page"},
		{"https://example.com:443/page", "https://example.com/page"},
		{"https://example.com:8443/page", "https://example.com:8443/page"},
		{"https://example.com/a/../b", "https://example.com/b"},
		{"https://example.com//a//b", "https://example.com/a/b"},
		{"https://example.com/%7Euser", "https://example.com/~user"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"HTTP://Example.com:80/a/./b/#x", "https://example.com/docs/?v=2"} {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", once, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent: %q then %q", once, twice)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "/relative/path", "://invalid", "example.com/page"} {
		if got, err := Normalize(in); err == nil {
			t.Errorf("Normalize(%q) = %q, want error", in, got)
		}
	}
}
