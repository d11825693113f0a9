// Package tls serves retrocalc over HTTPS, with manual certificates or Let's Encrypt.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

var (
	ErrMissingDomain = errors.New("domain is required for Let's Encrypt")
	ErrMissingEmail  = errors.New("email is required for Let's Encrypt")
	ErrMissingCert   = errors.New("certificate or key file not found")
)

// TLSConfig mirrors the [TLS] section
type TLSConfig struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPPort           string
	HTTPSPort          string
}

// TLSManager decides how the server listens
type TLSManager struct {
	config      *TLSConfig
	certManager *autocert.Manager
	tlsConfig   *tls.Config
}

// LoadTLSConfig reads the [TLS] and [Network] sections
func LoadTLSConfig() *TLSConfig {
	return &TLSConfig{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:             configuration.GetString("TLS", "domain", ""),
		LetsEncryptEmail:   configuration.GetString("TLS", "letsencrypt_email", ""),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:            configuration.GetString("TLS", "key_file", "./certs/server.key"),
		HTTPPort:           configuration.GetString("Network", "http_port", "8080"),
		HTTPSPort:          configuration.GetString("TLS", "https_port", "8443"),
	}
}

// NewTLSManager builds a manager from the loaded configuration
func NewTLSManager() (*TLSManager, error) {
	return NewTLSManagerWithConfig(LoadTLSConfig())
}

// NewTLSManagerWithConfig validates config and prepares the certificate source.
// With TLS disabled nothing else happens.
func NewTLSManagerWithConfig(config *TLSConfig) (*TLSManager, error) {
	m := &TLSManager{config: config}
	if !config.EnableTLS {
		logger.SecurityInfo("TLS disabled, serving plain HTTP on port %s", config.HTTPPort)
		return m, nil
	}
	if err := m.validateConfig(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if config.EnableLetsEncrypt {
		if err := m.initializeLetsEncrypt(); err != nil {
			return nil, err
		}
	} else if err := m.initializeManualTLS(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *TLSManager) validateConfig() error {
	if m.config.EnableLetsEncrypt {
		if m.config.Domain == "" {
			return ErrMissingDomain
		}
		if m.config.LetsEncryptEmail == "" {
			return ErrMissingEmail
		}
		return nil
	}
	if m.config.CertFile == "" || m.config.KeyFile == "" {
		return ErrMissingCert
	}
	return nil
}

func (m *TLSManager) initializeLetsEncrypt() error {
	if err := os.MkdirAll(m.config.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("creating certificate cache: %w", err)
	}

	m.certManager = &autocert.Manager{
		Cache:      autocert.DirCache(m.config.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Email:      m.config.LetsEncryptEmail,
	}

	m.tlsConfig = m.certManager.TLSConfig()
	m.tlsConfig.MinVersion = tls.VersionTLS12
	getCertificate := m.tlsConfig.GetCertificate
	m.tlsConfig.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := getCertificate(hello)
		if err != nil {
			logger.SecurityWarn("certificate for %q unavailable: %v", hello.ServerName, err)
		}
		return cert, err
	}

	logger.SecurityInfo("Let's Encrypt enabled for %s", m.config.Domain)
	return nil
}

// initializeManualTLS loads the configured key pair once at startup
func (m *TLSManager) initializeManualTLS() error {
	cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s, %s", ErrMissingCert, m.config.CertFile, m.config.KeyFile)
		}
		return fmt.Errorf("loading certificate: %w", err)
	}
	m.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	logger.SecurityInfo("using certificate %s", m.config.CertFile)
	return nil
}

// GetTLSConfig is nil when TLS is disabled
func (m *TLSManager) GetTLSConfig() *tls.Config {
	return m.tlsConfig
}

// GetHTTPHandler answers ACME challenges on the plain port and passes
// everything else to fallback. Without Let's Encrypt it returns fallback.
func (m *TLSManager) GetHTTPHandler(fallback http.Handler) http.Handler {
	if m.certManager == nil {
		return fallback
	}
	return m.certManager.HTTPHandler(fallback)
}

// NeedsHTTPServer reports whether the plain port must stay open next to HTTPS
func (m *TLSManager) NeedsHTTPServer() bool {
	return m.config.EnableTLS && (m.config.EnableLetsEncrypt || m.config.ForceHTTPSRedirect)
}

// GetHTTPSRedirectHandler is nil unless redirects are enabled
func (m *TLSManager) GetHTTPSRedirectHandler() http.Handler {
	if !m.config.EnableTLS || !m.config.ForceHTTPSRedirect {
		return nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		if m.config.Domain != "" {
			host = m.config.Domain
		}
		target := "https://" + host
		if m.config.HTTPSPort != "443" {
			target += ":" + m.config.HTTPSPort
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// PlainHandler is what the plain HTTP port serves: the app itself without
// TLS, otherwise redirects or ACME challenges.
func (m *TLSManager) PlainHandler(app http.Handler) http.Handler {
	if !m.config.EnableTLS {
		return app
	}
	fallback := m.GetHTTPSRedirectHandler()
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return m.GetHTTPHandler(fallback)
}

func (m *TLSManager) IsEnabled() bool {
	return m.config.EnableTLS
}

func (m *TLSManager) GetHTTPPort() string {
	return m.config.HTTPPort
}

func (m *TLSManager) GetHTTPSPort() string {
	return m.config.HTTPSPort
}

func (m *TLSManager) GetCertFiles() (string, string) {
	return m.config.CertFile, m.config.KeyFile
}

func (m *TLSManager) GetDomain() string {
	return m.config.Domain
}

// GenerateSelfSignedCert writes a P-256 certificate valid for hosts to
// certFile and keyFile, for local development.
func GenerateSelfSignedCert(certFile, keyFile string, hosts []string, validFor time.Duration) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"retrocalc"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	if err := writePEM(keyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return err
	}
	logger.SecurityInfo("generated self-signed certificate %s for %v", certFile, hosts)
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
