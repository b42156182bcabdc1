package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "forwarded chain", remoteAddr: "10.0.0.1:443", headers: map[string]string{"X-Forwarded-For": "54.1.2.3, 10.0.0.9"}, want: "54.1.2.3"},
		{name: "real ip", remoteAddr: "10.0.0.1:443", headers: map[string]string{"X-Real-IP": " 54.1.2.4 "}, want: "54.1.2.4"},
		{name: "remote ipv4", remoteAddr: "192.168.1.5:5000", want: "192.168.1.5"},
		{name: "remote ipv6", remoteAddr: "[::1]:5000", want: "::1"},
		{name: "remote without port", remoteAddr: "192.168.1.5", want: "192.168.1.5"},
		{name: "empty", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/twilio/webhook", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "203.0.113.7", got)
}
