package webhook

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// Request signing as documented for skills hosted as web services.
const (
	// HeaderCertChainURL carries the URL of the signing certificate chain.
	HeaderCertChainURL = "SignatureCertChainUrl"
	// HeaderSignature carries the base64 RSA SHA-256 signature of the body.
	HeaderSignature = "Signature-256"

	certHost       = "s3.amazonaws.com"
	certPathPrefix = "/echo.api/"
	signingSAN     = "echo-api.amazon.com"

	maxCertChainBytes = 64 << 10
)

// Verification failures. All of them mean the request must be rejected.
var (
	ErrInvalidCertURL     = errors.New("webhook: invalid signature certificate URL")
	ErrInvalidCertificate = errors.New("webhook: invalid signing certificate")
	ErrInvalidSignature   = errors.New("webhook: invalid request signature")
)

// VerifierOption is a functional option for configuring a [Verifier].
type VerifierOption func(*Verifier)

// WithVerifierHTTPClient sets the client used to download certificate chains.
func WithVerifierHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithRoots sets the trusted root pool. Default: the system pool.
func WithRoots(p *x509.CertPool) VerifierOption {
	return func(v *Verifier) { v.roots = p }
}

// WithVerifierClock sets the time source for certificate validity checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// Verifier checks that a request was signed by the voice platform. Verified
// signing certificates are cached by URL until they expire. It is safe for
// concurrent use.
type Verifier struct {
	client *http.Client
	roots  *x509.CertPool
	now    func() time.Time

	mu    sync.Mutex
	certs map[string]*x509.Certificate
}

// NewVerifier creates a Verifier.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
		certs:  make(map[string]*x509.Certificate),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify checks signature (base64) over body against the certificate chain
// published at certURL.
func (v *Verifier) Verify(ctx context.Context, certURL, signature string, body []byte) error {
	if certURL == "" || signature == "" {
		return fmt.Errorf("%w: missing %s or %s header", ErrInvalidSignature, HeaderCertChainURL, HeaderSignature)
	}
	if err := ValidateCertURL(certURL); err != nil {
		return err
	}
	leaf, err := v.certificate(ctx, certURL)
	if err != nil {
		return err
	}

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: public key is %T, want RSA", ErrInvalidCertificate, leaf.PublicKey)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: decode: %w", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

// ValidateCertURL checks that raw points at the platform's certificate
// bucket: https, host s3.amazonaws.com (any case), port 443 if given, and a
// normalised path under /echo.api/.
func ValidateCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCertURL, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q", ErrInvalidCertURL, u.Scheme)
	}
	if !strings.EqualFold(u.Hostname(), certHost) {
		return fmt.Errorf("%w: host %q", ErrInvalidCertURL, u.Hostname())
	}
	if p := u.Port(); p != "" && p != "443" {
		return fmt.Errorf("%w: port %q", ErrInvalidCertURL, p)
	}
	if !strings.HasPrefix(path.Clean(u.Path), certPathPrefix) {
		return fmt.Errorf("%w: path %q", ErrInvalidCertURL, u.Path)
	}
	return nil
}

// certificate returns the verified signing certificate published at certURL.
func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	now := v.now()

	v.mu.Lock()
	leaf, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok && now.Before(leaf.NotAfter) {
		return leaf, nil
	}

	chain, err := v.fetch(ctx, certURL)
	if err != nil {
		return nil, err
	}
	leaf, err = v.verifyChain(chain, now)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.certs[certURL] = leaf
	v.mu.Unlock()
	return leaf, nil
}

func (v *Verifier) fetch(ctx context.Context, certURL string) ([]*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertURL, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: fetch certificate chain: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook: fetch certificate chain: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertChainBytes))
	if err != nil {
		return nil, fmt.Errorf("webhook: read certificate chain: %w", err)
	}

	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse: %w", ErrInvalidCertificate, err)
		}
		chain = append(chain, c)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no certificates in chain", ErrInvalidCertificate)
	}
	return chain, nil
}

// verifyChain checks the leaf's validity window and SAN, and that the chain
// leads to a trusted root.
func (v *Verifier) verifyChain(chain []*x509.Certificate, now time.Time) (*x509.Certificate, error) {
	leaf := chain[0]
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("%w: outside validity window %s - %s", ErrInvalidCertificate, leaf.NotBefore, leaf.NotAfter)
	}
	if err := leaf.VerifyHostname(signingSAN); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return leaf, nil
}
