package fibload

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransport_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unexpected byte count received!", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPTransportConfig{ConnectTimeout: time.Second})
	_, err := tr.Fetch(context.Background(), http.MethodGet, srv.URL+"/5", nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", te.StatusCode)
	}
	if te.Err.Error() != "unexpected byte count received!" {
		t.Errorf("expected peer message, got %q", te.Err.Error())
	}
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tr := NewHTTPTransport(HTTPTransportConfig{ConnectTimeout: time.Second})
	_, err = tr.Fetch(context.Background(), http.MethodGet, "http://"+addr+"/3", nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.StatusCode != 0 {
		t.Errorf("expected no status, got %d", te.StatusCode)
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	cert, err := SelfSignedCertificate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.IPAddresses) != MaxPeers {
		t.Errorf("expected %d IP SANs, got %d", MaxPeers, len(parsed.IPAddresses))
	}
	for _, host := range []string{"127.0.0.1", "127.0.0.250", "localhost"} {
		if err := parsed.VerifyHostname(host); err != nil {
			t.Errorf("certificate not valid for %s: %v", host, err)
		}
	}
}

func TestServer_TLSRoundTrip(t *testing.T) {
	rt := NewRouter(localFib(), nil, RouterConfig{}, nil)
	srv, err := NewServer("127.0.0.1:0", rt, true, time.Second, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	tr := NewHTTPTransport(HTTPTransportConfig{UseTLS: true, ConnectTimeout: time.Second})
	got, err := tr.Fetch(context.Background(), http.MethodGet, "https://"+ln.Addr().String()+"/9", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != 34 {
		t.Errorf("expected 34, got %d", got)
	}
	tr.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ServeListenerReturnsError(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", http.NotFoundHandler(), false, time.Second, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close()

	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(context.Background(), ln) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error from a closed listener")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ServeListener did not return")
	}
}
