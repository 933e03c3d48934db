package common

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPHeaderPrecedence(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/payments", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.9")
	r.Header.Set("Client-IP", "203.0.113.7")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("expected Client-IP to win, got %q", got)
	}
}

func TestClientIPForwardedForList(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/payments", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.4" {
		t.Fatalf("expected first list entry, got %q", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/payments", nil)
	r.RemoteAddr = "192.0.2.20:51234"
	if got := ClientIP(r); got != "192.0.2.20" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}

func TestClientIPLoopbackDefault(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/payments", nil)
	r.RemoteAddr = ""
	if got := ClientIP(r); got != "127.0.0.1" {
		t.Fatalf("expected loopback default, got %q", got)
	}
}
