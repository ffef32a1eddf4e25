package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xff               string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.5:4321",
			want:       "203.0.113.5",
		},
		{
			name:       "proxy headers ignored when untrusted",
			remoteAddr: "203.0.113.5:4321",
			xff:        "1.2.3.4",
			want:       "203.0.113.5",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.1:1234",
			xff:        "1.2.3.4, 10.0.0.1",
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:              "two trusted proxies",
			remoteAddr:        "10.0.0.1:1234",
			xff:               "1.2.3.4, 10.0.0.2, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "1.2.3.4",
		},
		{
			name:       "malformed xff falls back to real ip",
			remoteAddr: "10.0.0.1:1234",
			xff:        "not-an-ip, 10.0.0.1",
			xRealIP:    "1.2.3.4",
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "x-real-ip only",
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "1.2.3.4",
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:              "more proxies claimed than present",
			remoteAddr:        "10.0.0.1:1234",
			xff:               "1.2.3.4",
			trustProxy:        true,
			trustedProxyCount: 5,
			want:              "1.2.3.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := GetClientIP(req, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
