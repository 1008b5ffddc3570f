package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIPExtractor(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		want    string
	}{
		{"direct ignores spoofed header", nil, "192.0.2.1:1000", "6.6.6.6", "192.0.2.1"},
		{"direct without header", nil, "192.0.2.1:1000", "", "192.0.2.1"},
		{"trusted proxy hop", []string{"10.0.0.0/8"}, "10.0.0.5:1000", "203.0.113.9", "203.0.113.9"},
		{"trusted chain skips inner proxies", []string{"10.0.0.0/8"}, "10.0.0.5:1000", "203.0.113.9, 10.1.1.1", "203.0.113.9"},
		{"spoof before trusted proxy", []string{"10.0.0.0/8"}, "10.0.0.5:1000", "6.6.6.6, 203.0.113.9", "203.0.113.9"},
		{"untrusted peer keeps its address", []string{"10.0.0.0/8"}, "192.0.2.1:1000", "6.6.6.6", "192.0.2.1"},
		{"private peer not trusted implicitly", []string{"10.0.0.0/8"}, "172.16.0.4:1000", "6.6.6.6", "172.16.0.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := IPExtractor(tt.trusted)(req); got != tt.want {
				t.Errorf("IPExtractor() = %q, want %q", got, tt.want)
			}
		})
	}
}
