package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig is the certificate material and policy of a secure endpoint.
// Build turns it into a *tls.Config for one role.
type TLSConfig struct {
	// Certificate identifies this endpoint. Required for servers.
	Certificate tls.Certificate

	// RootCAs verifies servers. Nil uses the system pool.
	RootCAs *x509.CertPool

	// ClientCAs verifies clients. A non-nil pool makes servers require a
	// client certificate.
	ClientCAs *x509.CertPool

	// ServerName is the name clients expect in the server certificate.
	ServerName string

	// NextProtos lists the ALPN protocols to offer.
	NextProtos []string

	// MinVersion defaults to TLS 1.3.
	MinVersion uint16

	// InsecureSkipVerify disables peer verification. Tests only.
	InsecureSkipVerify bool

	// VerifyPeerCertificate runs after the standard verification.
	VerifyPeerCertificate func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error
}

// ErrNoCertificate is returned when building a server config without a
// certificate.
var ErrNoCertificate = errors.New("server certificate is required")

// Build returns the configuration for role. Session tickets are disabled so
// every connection runs a full handshake.
func (c *TLSConfig) Build(role Role) (*tls.Config, error) {
	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS13
	}

	tc := &tls.Config{
		MinVersion:             minVersion,
		NextProtos:             c.NextProtos,
		CurvePreferences:       []tls.CurveID{tls.X25519, tls.CurveP256},
		SessionTicketsDisabled: true,
		VerifyPeerCertificate:  c.VerifyPeerCertificate,
		InsecureSkipVerify:     c.InsecureSkipVerify,
	}
	if len(c.Certificate.Certificate) > 0 {
		tc.Certificates = []tls.Certificate{c.Certificate}
	}

	switch role {
	case RoleServer:
		if len(tc.Certificates) == 0 {
			return nil, ErrNoCertificate
		}
		if c.ClientCAs != nil {
			tc.ClientAuth = tls.RequireAndVerifyClientCert
			tc.ClientCAs = c.ClientCAs
		}
	case RoleClient:
		tc.RootCAs = c.RootCAs
		tc.ServerName = c.ServerName
	default:
		return nil, fmt.Errorf("unknown role %v", role)
	}
	return tc, nil
}

// LoadTLSConfig builds a configuration for role from PEM files. caFile is
// optional; on servers it turns on client certificate verification.
func LoadTLSConfig(role Role, certFile, keyFile, caFile, serverName string) (*tls.Config, error) {
	c := &TLSConfig{ServerName: serverName}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		c.Certificate = cert
	}

	if caFile != "" {
		pool, err := loadCertPool(caFile)
		if err != nil {
			return nil, err
		}
		if role == RoleServer {
			c.ClientCAs = pool
		} else {
			c.RootCAs = pool
		}
	}
	return c.Build(role)
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// CheckVersion returns an error when the negotiated version is below minVersion.
func CheckVersion(state tls.ConnectionState, minVersion uint16) error {
	if state.Version < minVersion {
		return fmt.Errorf("negotiated %s, want at least %s",
			tls.VersionName(state.Version), tls.VersionName(minVersion))
	}
	return nil
}
