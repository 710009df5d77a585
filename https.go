package bifrost

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

func tlsListener(cert, key string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		certificate, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, err
		}

		return tls.Listen(network, addr, &tls.Config{
			Certificates: []tls.Certificate{certificate},
		})
	}
}

func autoTLSListener(domains ...string) ListenerFactory {
	return func(network, addr string) (net.Listener, error) {
		m := &autocert.Manager{
			Prompt: autocert.AcceptTOS,
		}

		if len(domains) > 0 {
			m.HostPolicy = autocert.HostWhitelist(domains...)
		}

		if cache, err := cacheDir(); err != nil {
			log.Printf("WARNING: auto HTTPS: not using a certificate cache: %s", err)
		} else {
			m.Cache = autocert.DirCache(cache)
		}

		return tls.Listen(network, addr, &tls.Config{
			GetCertificate: m.GetCertificate,
		})
	}
}

func cacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, "bifrost-autocert")

	return dir, os.MkdirAll(dir, 0700)
}

// selfSignedCert returns a cached localhost certificate pair, generating
// one on the first call.
func selfSignedCert() (cert, key string, err error) {
	cache, err := cacheDir()
	if err != nil {
		return "", "", err
	}

	cert = filepath.Join(cache, "localhost.crt")
	key = filepath.Join(cache, "localhost.key")
	if fileExists(cert) && fileExists(key) {
		return cert, key, nil
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Localhost"}},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}

	if err := writePEM(cert, "CERTIFICATE", certDER); err != nil {
		return "", "", err
	}

	if err := writePEM(key, "PRIVATE KEY", privDER); err != nil {
		return "", "", err
	}

	return cert, key, nil
}

func writePEM(filename, blockType string, der []byte) error {
	fd, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fd.Close()

	return pem.Encode(fd, &pem.Block{Type: blockType, Bytes: der})
}

func fileExists(filename string) bool {
	stat, err := os.Stat(filename)

	return err == nil && !stat.IsDir()
}
