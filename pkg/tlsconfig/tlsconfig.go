// Package tlsconfig turns a declarative TLS policy into a *tls.Config.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Policy describes certificate verification and client identity.
// Verify defaults to true through New and the presets; a bare Policy{}
// disables verification, so prefer the constructors.
type Policy struct {
	Verify bool

	// CAFile is a PEM bundle added to the system roots.
	CAFile string

	// CertFile and KeyFile hold a PEM client certificate and key.
	CertFile string
	KeyFile  string

	MinVersion uint16
	MaxVersion uint16

	// CipherSuites are names as reported by tls.CipherSuiteName,
	// e.g. "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256".
	CipherSuites []string

	ServerName string
}

// New returns a verifying policy with library version defaults.
func New() Policy {
	return Policy{Verify: true}
}

// Insecure skips certificate verification.
func Insecure() Policy {
	return Policy{Verify: false}
}

// Development is Insecure under a name that reads better at call sites.
func Development() Policy {
	return Insecure()
}

// Production verifies certificates and requires TLS 1.2 or newer.
func Production() Policy {
	return Policy{Verify: true, MinVersion: tls.VersionTLS12}
}

// TLS12Only pins the protocol to TLS 1.2.
func TLS12Only() Policy {
	return Policy{Verify: true, MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS12}
}

// TLS13Only pins the protocol to TLS 1.3.
func TLS13Only() Policy {
	return Policy{Verify: true, MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13}
}

// WithCA returns p with an extra CA bundle.
func (p Policy) WithCA(path string) Policy {
	p.CAFile = path
	return p
}

// WithClientCert returns p with a client certificate and key.
func (p Policy) WithClientCert(certFile, keyFile string) Policy {
	p.CertFile = certFile
	p.KeyFile = keyFile
	return p
}

// Config builds the tls.Config. Files are read through fsys.
func (p Policy) Config(fsys filesystem.FileSystem) (*tls.Config, error) {
	if fsys == nil {
		fsys = filesystem.Default
	}

	cfg := &tls.Config{
		InsecureSkipVerify: !p.Verify, //nolint:gosec // opt-in via Insecure/Development
		MinVersion:         p.MinVersion,
		MaxVersion:         p.MaxVersion,
		ServerName:         p.ServerName,
	}

	if p.CAFile != "" {
		pem, err := fsys.ReadFile(p.CAFile)
		if err != nil {
			return nil, errors.NewConfigError("caCert", fmt.Sprintf("failed to read %s: %v", p.CAFile, err))
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.NewConfigError("caCert", fmt.Sprintf("no certificates found in %s", p.CAFile))
		}
		cfg.RootCAs = pool
	}

	if p.CertFile != "" || p.KeyFile != "" {
		if p.CertFile == "" || p.KeyFile == "" {
			return nil, errors.NewConfigError("clientCert", "certificate and key must be set together")
		}
		certPEM, err := fsys.ReadFile(p.CertFile)
		if err != nil {
			return nil, errors.NewConfigError("clientCert", fmt.Sprintf("failed to read %s: %v", p.CertFile, err))
		}
		keyPEM, err := fsys.ReadFile(p.KeyFile)
		if err != nil {
			return nil, errors.NewConfigError("clientKey", fmt.Sprintf("failed to read %s: %v", p.KeyFile, err))
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, errors.NewConfigError("clientCert", err.Error())
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	if len(p.CipherSuites) > 0 {
		ids, err := cipherIDs(p.CipherSuites)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = ids
	}

	return cfg, nil
}

func cipherIDs(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.NewConfigError("cipherSuites", fmt.Sprintf("unknown cipher suite %q", name))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
