package fibload

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPTransportConfig configures the outbound client.
type HTTPTransportConfig struct {
	UseTLS              bool
	DisablePool         bool
	ConnectTimeout      time.Duration
	MaxIdleConnsPerHost int
	BufferSize          int
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a client that can hold many concurrent connections
// to distinct loopback peers. TLS peers are trusted without verification since
// every peer presents the same self-signed certificate.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	tr := &http.Transport{
		DialContext:         dialer.DialContext,
		DisableCompression:  true,
		DisableKeepAlives:   cfg.DisablePool,
		MaxIdleConns:        0,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		ReadBufferSize:      cfg.BufferSize,
		WriteBufferSize:     cfg.BufferSize,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		ForceAttemptHTTP2:   cfg.UseTLS,
	}
	if cfg.UseTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HTTPTransport{client: &http.Client{Transport: tr}}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, method, url string, body io.Reader) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, &TransportError{URL: url, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(raw))),
		}
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return v, nil
}

// CloseIdleConnections releases pooled connections.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

// SelfSignedCertificate generates a throwaway certificate valid for the whole
// loopback range.
func SelfSignedCertificate() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}
	for _, h := range LoopbackHosts("127.0.0.", MaxPeers) {
		tmpl.IPAddresses = append(tmpl.IPAddresses, net.ParseIP(h))
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// Server is the HTTP listener for the fibonacci endpoint.
type Server struct {
	httpServer      *http.Server
	useTLS          bool
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer creates a server for handler on addr. When useTLS is set a fresh
// self-signed certificate is generated.
func NewServer(addr string, handler http.Handler, useTLS bool, shutdownTimeout time.Duration, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	if useTLS {
		cert, err := SelfSignedCertificate()
		if err != nil {
			return nil, err
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	return &Server{httpServer: srv, useTLS: useTLS, shutdownTimeout: shutdownTimeout, logger: logger}, nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Serve listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	scheme := "http"
	if s.useTLS {
		scheme = "https"
	}
	s.logger.Info(scheme+" server started", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.useTLS {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}
