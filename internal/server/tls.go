package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// LoadOrGenerateCert returns the TLS configuration for the control port.
// Missing certificate files are replaced by a freshly generated self-signed
// pair, written back so the server identity stays stable across restarts.
// Clients pin the fingerprint; a changed certificate looks like a different
// server to them.
func LoadOrGenerateCert(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		return tlsConfig(cert), nil
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err == nil {
		return tlsConfig(cert), nil
	}
	if !os.IsNotExist(underlying(err)) {
		return nil, fmt.Errorf("server: load certificate: %w", err)
	}

	log.Info().Str("module", "server").Str("cert", certFile).
		Msg("certificate missing, generating self-signed pair")

	cert, err = selfSignedCert()
	if err != nil {
		return nil, err
	}
	if werr := writeCert(cert, certFile, keyFile); werr != nil {
		log.Warn().Err(werr).Str("module", "server").
			Msg("could not persist generated certificate")
	}
	return tlsConfig(cert), nil
}

func tlsConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		// Clients authenticate by certificate fingerprint; any cert is
		// accepted here and resolved against the user store later.
		ClientAuth: tls.RequestClientCert,
		MinVersion: tls.VersionTLS12,
	}
}

func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "Murmel Server", Organization: []string{"murmel"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(20, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}

func writeCert(cert tls.Certificate, certFile, keyFile string) error {
	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(certFile, certOut, 0o644); err != nil {
		return err
	}

	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		return err
	}
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return os.WriteFile(keyFile, keyOut, 0o600)
}

func underlying(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
