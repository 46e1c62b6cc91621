// Package httpclient builds the HTTP client with which completed uploads
// are forwarded to an update endpoint.
package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gokrazy/ghostfat/config"
	"github.com/spf13/afero"
)

// DefaultUser is the user name for passwords from http-password.txt.
const DefaultUser = "gokrazy"

// ForUpdateURL returns a client and the normalized base URL for
// forwarding uploads to rawURL. Settings which rawURL does not carry
// are read from the device directory: the password from
// http-password.txt and, for https, a certificate to trust from cert.pem.
func ForUpdateURL(fs afero.Fs, dir config.DeviceDir, rawURL string, tlsInsecure bool) (*http.Client, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, nil, fmt.Errorf("update URL %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.User == nil {
		if pw, err := dir.ReadFile(fs, "http-password.txt"); err == nil && pw != "" {
			u.User = url.UserPassword(DefaultUser, pw)
		}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		log.Printf("initializing x509 system cert pool failed (%v), falling back to empty cert pool", err)
	}
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	if u.Scheme == "https" {
		if cert, err := dir.ReadFile(fs, "cert.pem"); err == nil {
			if !rootCAs.AppendCertsFromPEM([]byte(cert)) {
				return nil, nil, fmt.Errorf("%s/cert.pem: no certificates found", dir)
			}
		}
	}
	return newClient(rootCAs, tlsInsecure), u, nil
}

func newClient(trustStore *x509.CertPool, tlsInsecure bool) *http.Client {
	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.TLSClientConfig = &tls.Config{
		RootCAs:            trustStore,
		InsecureSkipVerify: tlsInsecure,
	}

	return &http.Client{
		Transport: httpTransport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) == 0 {
				return nil
			}

			last := via[len(via)-1]
			if last.URL.Host != r.URL.Host {
				// Do not send credentials to other targets
				return nil
			}
			if u := last.URL.User; u != nil {
				if pass, ok := u.Password(); ok {
					// Carry over basic authentication across redirects:
					r.SetBasicAuth(u.Username(), pass)
				}
			}
			return nil
		},
	}
}
