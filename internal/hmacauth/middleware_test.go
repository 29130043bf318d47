package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newVerifier() *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixedNow },
	}
}

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"sender":"0xabc","metadataUri":"ipfs://QmTest"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mints", strings.NewReader(body))
	SignRequest(req, "secret", []byte(body), fixedNow)
	rec := httptest.NewRecorder()

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})

	newVerifier().Middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, seen, "body must be readable after verification")
}

func TestMiddleware_Rejections(t *testing.T) {
	body := `{"foo":"bar"}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)

	tests := []struct {
		name    string
		headers map[string]string
		want    error
	}{
		{"missing signature", map[string]string{DefaultTimestampHeader: ts}, ErrMissingSignature},
		{"missing timestamp", map[string]string{DefaultSignatureHeader: "ab"}, ErrMissingTimestamp},
		{"stale", map[string]string{
			DefaultTimestampHeader: strconv.FormatInt(fixedNow.Add(-2*time.Minute).Unix(), 10),
			DefaultSignatureHeader: Sign("secret", strconv.FormatInt(fixedNow.Add(-2*time.Minute).Unix(), 10), []byte(body)),
		}, ErrStaleTimestamp},
		{"bad signature", map[string]string{DefaultTimestampHeader: ts, DefaultSignatureHeader: "deadbeef"}, ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			var rejected error
			v := newVerifier()
			v.OnReject = func(_ *http.Request, err error) { rejected = err }
			v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.ErrorIs(t, rejected, tt.want)
		})
	}
}

func TestMiddleware_CustomHeaders(t *testing.T) {
	body := `{}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	v := newVerifier()
	v.SignatureHeader = "X-Relay-Signature"
	v.TimestampHeader = "X-Relay-Timestamp"

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("X-Relay-Signature", strings.ToUpper(Sign("secret", ts, []byte(body))))
	req.Header.Set("X-Relay-Timestamp", ts)
	rec := httptest.NewRecorder()

	called := false
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rec, req)
	require.True(t, called)
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	called := false
	(&Verifier{}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rec, req)
	assert.True(t, called)
}
