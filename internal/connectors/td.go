package connectors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

// TD authenticates with a client certificate over mutual TLS.
type TD struct {
	*session

	creds connector.CertificateCredentials
}

// NewTDFactory builds a TD connector. It is a Factory.
func NewTDFactory(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger) (connector.Connector, error) {
	return NewTD(ep, creds, logger)
}

// NewTD builds a TD connector. Certificate files are read on Connect so a
// reload picks up rotated files.
func NewTD(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger) (*TD, error) {
	certCreds, ok := creds.(connector.CertificateCredentials)
	if !ok {
		return nil, connector.KindMismatchError{Provider: ep.Provider, Want: connector.KindCertificate, Got: kindOf(creds)}
	}
	return &TD{
		session: newSession(ep, logger, nil),
		creds:   certCreds,
	}, nil
}

// Connect loads the key pair, builds the mTLS transport and probes the
// status endpoint.
func (t *TD) Connect(ctx context.Context) error {
	if err := t.beginConnect(); err != nil {
		return err
	}
	start := time.Now()

	tlsConfig, err := loadTLSConfig(t.creds)
	if err != nil {
		return t.finishConnect(start, err)
	}

	t.mu.Lock()
	t.client = &http.Client{
		Timeout:   t.ep.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig, ForceAttemptHTTP2: true},
	}
	t.mu.Unlock()

	if _, err := t.probe(ctx, nil); err != nil {
		return t.finishConnect(start, err)
	}
	return t.finishConnect(start, nil)
}

// Disconnect closes idle TLS connections. It is idempotent.
func (t *TD) Disconnect(_ context.Context) error {
	t.mu.Lock()
	t.client.CloseIdleConnections()
	t.state = connector.StateDisconnected
	t.mu.Unlock()
	return nil
}

// HealthCheck probes the status endpoint over the established transport.
func (t *TD) HealthCheck(ctx context.Context) (connector.HealthStatus, error) {
	return t.healthCheck(ctx, nil)
}

func loadTLSConfig(creds connector.CertificateCredentials) (*tls.Config, error) {
	certPEM, err := os.ReadFile(creds.CertPath)
	if err != nil {
		return nil, fmt.Errorf("read client certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(creds.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read client key: %w", err)
	}

	if creds.Passphrase != "" {
		keyPEM, err = decryptKeyPEM(keyPEM, creds.Passphrase)
		if err != nil {
			return nil, err
		}
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load client key pair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}

	if creds.CAPath != "" {
		caPEM, err := os.ReadFile(creds.CAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("CA bundle contains no certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// decryptKeyPEM decrypts a legacy encrypted PEM private key. Unencrypted
// keys are returned unchanged.
func decryptKeyPEM(keyPEM []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("client key is not PEM encoded")
	}
	//nolint:staticcheck // legacy RFC 1423 encryption
	if !x509.IsEncryptedPEMBlock(block) {
		return keyPEM, nil
	}
	//nolint:staticcheck
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("decrypt client key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}
