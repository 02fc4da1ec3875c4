package webhook_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/couchskill/internal/webhook"
	"github.com/MrWong99/couchskill/pkg/alexa"
)

const certURL = "https://s3.amazonaws.com/echo.api/echo-api-cert.pem"

// signingPKI is a throwaway CA and two RSA leaves: one for the signing SAN
// and one for an unrelated host.
type signingPKI struct {
	roots     *x509.CertPool
	key       *rsa.PrivateKey
	chain     []byte
	wrongSAN  []byte
	notBefore time.Time
	notAfter  time.Time
}

var testPKI = sync.OnceValue(func() *signingPKI {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	must(err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	must(err)
	ca, err := x509.ParseCertificate(caDER)
	must(err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	must(err)
	leaf := func(serial int64, dns string) []byte {
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(serial),
			Subject:      pkix.Name{CommonName: dns},
			DNSNames:     []string{dns},
			NotBefore:    now.Add(-time.Hour),
			NotAfter:     now.Add(30 * 24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &leafKey.PublicKey, caKey)
		must(err)
		out := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
		return append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})...)
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)
	return &signingPKI{
		roots:     roots,
		key:       leafKey,
		chain:     leaf(2, "echo-api.amazon.com"),
		wrongSAN:  leaf(3, "example.com"),
		notBefore: now.Add(-time.Hour),
		notAfter:  now.Add(30 * 24 * time.Hour),
	}
})

func (p *signingPKI) sign(t *testing.T, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// certServer answers every request with the same PEM body and counts them.
type certServer struct {
	pem   []byte
	calls atomic.Int32
}

func (s *certServer) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(s.pem))),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func newVerifier(pemBody []byte, at time.Time) (*webhook.Verifier, *certServer) {
	srv := &certServer{pem: pemBody}
	v := webhook.NewVerifier(
		webhook.WithVerifierHTTPClient(&http.Client{Transport: srv}),
		webhook.WithRoots(testPKI().roots),
		webhook.WithVerifierClock(func() time.Time { return at }),
	)
	return v, srv
}

func TestValidateCertURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://s3.amazonaws.com/echo.api/echo-api-cert.pem", true},
		{"https://s3.amazonaws.com:443/echo.api/echo-api-cert.pem", true},
		{"https://S3.AMAZONAWS.COM/echo.api/echo-api-cert.pem", true},
		{"https://s3.amazonaws.com/echo.api/../echo.api/echo-api-cert.pem", true},
		{"http://s3.amazonaws.com/echo.api/echo-api-cert.pem", false},
		{"https://notamazon.com/echo.api/echo-api-cert.pem", false},
		{"https://s3.amazonaws.com/EcHo.aPi/echo-api-cert.pem", false},
		{"https://s3.amazonaws.com/invalid.path/echo-api-cert.pem", false},
		{"https://s3.amazonaws.com:563/echo.api/echo-api-cert.pem", false},
		{"https://s3.amazonaws.com/echo.api/../invalid.path/cert.pem", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		err := webhook.ValidateCertURL(tt.url)
		if tt.valid && err != nil {
			t.Errorf("ValidateCertURL(%q) = %v, want nil", tt.url, err)
		}
		if !tt.valid && !errors.Is(err, webhook.ErrInvalidCertURL) {
			t.Errorf("ValidateCertURL(%q) = %v, want ErrInvalidCertURL", tt.url, err)
		}
	}
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	pki := testPKI()
	body := []byte(`{"version":"1.0"}`)
	sig := pki.sign(t, body)

	tests := []struct {
		name    string
		pem     []byte
		at      time.Time
		certURL string
		sig     string
		body    []byte
		wantErr error
	}{
		{"valid", pki.chain, now, certURL, sig, body, nil},
		{"tampered body", pki.chain, now, certURL, sig, []byte(`{"version":"2.0"}`), webhook.ErrInvalidSignature},
		{"signature not base64", pki.chain, now, certURL, "%%%", body, webhook.ErrInvalidSignature},
		{"missing signature", pki.chain, now, certURL, "", body, webhook.ErrInvalidSignature},
		{"bad cert url", pki.chain, now, "https://example.com/echo.api/cert.pem", sig, body, webhook.ErrInvalidCertURL},
		{"wrong SAN", pki.wrongSAN, now, certURL, sig, body, webhook.ErrInvalidCertificate},
		{"expired", pki.chain, pki.notAfter.Add(time.Minute), certURL, sig, body, webhook.ErrInvalidCertificate},
		{"not yet valid", pki.chain, pki.notBefore.Add(-time.Minute), certURL, sig, body, webhook.ErrInvalidCertificate},
		{"not pem", []byte("hello"), now, certURL, sig, body, webhook.ErrInvalidCertificate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, _ := newVerifier(tt.pem, tt.at)
			err := v.Verify(context.Background(), tt.certURL, tt.sig, tt.body)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifier_UntrustedRoot(t *testing.T) {
	t.Parallel()

	pki := testPKI()
	body := []byte(`{}`)
	v := webhook.NewVerifier(
		webhook.WithVerifierHTTPClient(&http.Client{Transport: &certServer{pem: pki.chain}}),
		webhook.WithRoots(x509.NewCertPool()),
		webhook.WithVerifierClock(func() time.Time { return now }),
	)
	if err := v.Verify(context.Background(), certURL, pki.sign(t, body), body); !errors.Is(err, webhook.ErrInvalidCertificate) {
		t.Errorf("Verify err = %v, want ErrInvalidCertificate", err)
	}
}

func TestVerifier_CachesCertificate(t *testing.T) {
	t.Parallel()

	pki := testPKI()
	v, srv := newVerifier(pki.chain, now)
	for i := range 3 {
		body := []byte{byte('a' + i)}
		if err := v.Verify(context.Background(), certURL, pki.sign(t, body), body); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
	if got := srv.calls.Load(); got != 1 {
		t.Errorf("certificate fetched %d times, want 1", got)
	}
}

func TestHandler_VerifiesSignature(t *testing.T) {
	t.Parallel()

	pki := testPKI()
	v, _ := newVerifier(pki.chain, now)
	d := &fakeDispatcher{resp: alexa.NewResponse(nil).Say("signed")}
	h := newHandler(d, webhook.WithVerifier(v))
	payload := body(t, nil)

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/alexa", strings.NewReader(payload))
		req.Header.Set(webhook.HeaderCertChainURL, certURL)
		req.Header.Set(webhook.HeaderSignature, sig)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(pki.sign(t, []byte(payload+" "))); rec.Code != http.StatusBadRequest {
		t.Errorf("bad signature: status = %d, want 400", rec.Code)
	}
	if len(d.calls) != 0 {
		t.Fatal("unsigned request reached the dispatcher")
	}

	resp := decode(t, send(pki.sign(t, []byte(payload))))
	if resp.Speech() != "signed" {
		t.Errorf("speech = %q", resp.Speech())
	}
}
