package tls

import (
	"crypto/tls"
	"fmt"

	"logpipe-hq/logpipe/pkg/config"
)

// NewServerConfig loads the certificate named by cfg and returns a server
// TLS configuration that serves it through the returned reloader. Both are
// nil when TLS is disabled. Call Start on the reloader to pick up renewed
// certificates.
func NewServerConfig(cfg config.TLSConfig) (*tls.Config, *CertificateReloader, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.CertFile == "" {
		return nil, nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if cfg.KeyFile == "" {
		return nil, nil, fmt.Errorf("key_file is required when TLS is enabled")
	}

	reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err := reloader.Load(); err != nil {
		return nil, nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	// #nosec G402 - MinVersion is 1.2 or 1.3
	tlsConfig := &tls.Config{
		MinVersion:     parseTLSVersion(cfg.MinVersion),
		GetCertificate: reloader.GetCertificateFunc(),
	}
	return tlsConfig, reloader, nil
}

// parseTLSVersion maps "1.2" to TLS 1.2; anything else means TLS 1.3.
func parseTLSVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}
