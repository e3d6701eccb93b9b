package adapters

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

const defaultAPIKeyHeader = "X-API-Key"

// AuthHeaders builds the static headers for api_key and basic credentials.
// oauth2 and certificate auth live in the transport instead.
func AuthHeaders(creds adapter.Credentials) http.Header {
	h := http.Header{}
	switch creds.AuthType {
	case adapter.AuthAPIKey:
		name := creds.HeaderName
		if name == "" {
			name = defaultAPIKeyHeader
		}
		if strings.EqualFold(name, "Authorization") {
			h.Set("Authorization", "Bearer "+creds.APIKey)
		} else {
			h.Set(name, creds.APIKey)
		}
	case adapter.AuthBasic:
		token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
		h.Set("Authorization", "Basic "+token)
	}
	return h
}

// authTransport wraps base with the credential-specific transport layer
func authTransport(cfg adapter.Config, base *http.Transport) (http.RoundTripper, error) {
	creds := cfg.Credentials
	switch creds.AuthType {
	case adapter.AuthCertificate:
		tlsCfg, err := clientTLSConfig(creds)
		if err != nil {
			return nil, err
		}
		base.TLSClientConfig = tlsCfg
		return base, nil

	case adapter.AuthOAuth2:
		tokenURL := creds.TokenURL
		if tokenURL == "" {
			tokenURL = strings.TrimRight(cfg.BaseURL, "/") + "/oauth/token"
		}
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       creds.Scopes,
		}
		// token requests go through the same base transport
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base})
		return &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)),
			Base:   base,
		}, nil

	default:
		return base, nil
	}
}

func clientTLSConfig(creds adapter.Credentials) (*tls.Config, error) {
	keyPath := creds.KeyPath
	if keyPath == "" {
		keyPath = creds.CertificatePath
	}
	cert, err := tls.LoadX509KeyPair(creds.CertificatePath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if creds.CAPath != "" {
		pem, err := os.ReadFile(creds.CAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s has no certificates", creds.CAPath)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

func newBaseTransport() *http.Transport {
	return cleanhttp.DefaultPooledTransport()
}
