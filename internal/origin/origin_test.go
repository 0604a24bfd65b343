package origin

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		wantHost string
		ok       bool
	}{
		{in: "http://localhost:3000", want: "http://localhost:3000", wantHost: "localhost:3000", ok: true},
		{in: "https://App.Example.COM", want: "https://app.example.com", wantHost: "app.example.com", ok: true},
		{in: "https://app.example.com:443", want: "https://app.example.com", wantHost: "app.example.com", ok: true},
		{in: "http://example.com:80", want: "http://example.com", wantHost: "example.com", ok: true},
		{in: "http://[::1]:3000", want: "http://[::1]:3000", wantHost: "[::1]:3000", ok: true},
		{in: "null", want: "null", ok: true},
		{in: "", ok: false},
		{in: "example.com", ok: false},
		{in: "ftp://example.com", ok: false},
		{in: "http://example.com/path", ok: false},
		{in: "http://user:pw@example.com", ok: false},
		{in: "http://example.com?q=1", ok: false},
		{in: "http://example.com:0", ok: false},
	}

	for _, tc := range cases {
		got, host, ok := Normalize(tc.in)
		if ok != tc.ok {
			t.Errorf("Normalize(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got != tc.want || host != tc.wantHost {
			t.Errorf("Normalize(%q) = (%q, %q), want (%q, %q)", tc.in, got, host, tc.want, tc.wantHost)
		}
	}
}

func TestIsAllowed_Allowlist(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://app.example.com"}

	if !IsAllowed("http://localhost:3000", "localhost:3000", "broker:8080", allowed) {
		t.Error("exact allowlist match rejected")
	}
	if IsAllowed("https://evil.example.com", "evil.example.com", "broker:8080", allowed) {
		t.Error("non-listed origin accepted")
	}
	if !IsAllowed("https://anything.example.com", "anything.example.com", "broker:8080", []string{"*"}) {
		t.Error("wildcard allowlist rejected an origin")
	}
}

func TestIsAllowed_SameHostFallback(t *testing.T) {
	if !IsAllowed("http://broker.example.com:8080", "broker.example.com:8080", "broker.example.com:8080", nil) {
		t.Error("same host rejected")
	}
	// Scheme-default ports compare equal.
	if !IsAllowed("https://broker.example.com", "broker.example.com", "broker.example.com:443", nil) {
		t.Error("default-port same host rejected")
	}
	if IsAllowed("http://other.example.com", "other.example.com", "broker.example.com", nil) {
		t.Error("cross host accepted")
	}
	if IsAllowed("null", "", "broker.example.com", nil) {
		t.Error("null origin accepted by same-host fallback")
	}
}
