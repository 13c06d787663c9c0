package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"time"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// ExpiringWindow is how close to NotAfter a certificate is reported as expiring.
const ExpiringWindow = 30 * 24 * time.Hour

const dialTimeout = 10 * time.Second

// CertStatus describes one certificate.
type CertStatus struct {
	Source   string    `json:"source"`
	Issuer   string    `json:"issuer,omitempty"`
	NotAfter time.Time `json:"not_after"`
	DaysLeft int       `json:"days_left"`
	Status   string    `json:"status"`
}

// Check dials the TLS endpoint behind serverURL and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for non-HTTPS URLs. A failed handshake yields StatusUnreachable.
// tlsCfg may be nil; it is cloned before use.
func Check(ctx context.Context, serverURL string, tlsCfg *tls.Config) *CertStatus {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Source: serverURL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	cfg := &tls.Config{}
	if tlsCfg != nil {
		cfg = tlsCfg.Clone()
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}
	cs.fill(peerCerts[0], time.Now())
	return cs
}

// CheckFile reports on the first certificate in the PEM file at path,
// typically the agent's own client certificate.
func CheckFile(path string, now time.Time) (*CertStatus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("security: %s: %w", path, errNoCertificate)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse %s: %w", path, err)
	}

	cs := &CertStatus{Source: path}
	cs.fill(cert, now)
	return cs, nil
}

var errNoCertificate = errors.New("no PEM certificate found")

// ClientTLS builds the TLS config used to reach the server: the CA file,
// when set, replaces the system roots.
func ClientTLS(caFile string) (*tls.Config, error) {
	if caFile == "" {
		return nil, nil
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("security: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("security: no valid certs in ca file %q", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (cs *CertStatus) fill(leaf *x509.Certificate, now time.Time) {
	cs.Issuer = leaf.Issuer.CommonName
	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Status, cs.DaysLeft = classify(leaf.NotAfter, now)
}

func classify(notAfter, now time.Time) (string, int) {
	left := notAfter.Sub(now)
	days := int(math.Floor(left.Hours() / 24))
	switch {
	case left <= 0:
		return StatusExpired, days
	case left <= ExpiringWindow:
		return StatusExpiring, days
	default:
		return StatusValid, days
	}
}
