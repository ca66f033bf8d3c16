package telephony

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSignature(t *testing.T) {
	// Reference vector computed independently per the provider's published
	// algorithm: URL + sorted key/value concatenation, HMAC-SHA1, base64.
	authToken := "12345"
	fullURL := "https://mycompany.com/myapp.php?foo=1&bar=2"
	form := url.Values{}
	form.Set("CallSid", "CA1234567890ABCDE")
	form.Set("Caller", "+14158675310")
	form.Set("Digits", "1234")
	form.Set("From", "+14158675310")
	form.Set("To", "+18005551212")

	want := "GvWf1cFY/Q7PnoempGyD5oXAezc="
	if got := Signature(authToken, fullURL, form); got != want {
		t.Errorf("Signature = %q, want %q", got, want)
	}

	t.Run("body change breaks signature", func(t *testing.T) {
		mutated := url.Values{}
		for k := range form {
			mutated.Set(k, form.Get(k))
		}
		mutated.Set("Digits", "1235")
		if Signature(authToken, fullURL, mutated) == want {
			t.Error("signature should change when any form value changes")
		}
	})

	t.Run("secret change breaks signature", func(t *testing.T) {
		if Signature("12346", fullURL, form) == want {
			t.Error("signature should change when the secret changes")
		}
	})
}

func TestValidateRequest(t *testing.T) {
	authToken := "secret-token"
	publicURL := "https://example.com/voice/answer?conversation_count=0"

	newSignedRequest := func(sig string) *http.Request {
		form := url.Values{}
		form.Set("CallSid", "CA123")
		form.Set("SpeechResult", "yes")

		req := httptest.NewRequest(http.MethodPost, "/voice/answer?conversation_count=0", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			req.Header.Set(SignatureHeader, sig)
		}
		_ = req.ParseForm()
		return req
	}

	t.Run("valid signature accepted", func(t *testing.T) {
		form := url.Values{"CallSid": {"CA123"}, "SpeechResult": {"yes"}}
		req := newSignedRequest(Signature(authToken, publicURL, form))
		if !ValidateRequest(req, publicURL, authToken, false, discardLogger()) {
			t.Error("valid signature should be accepted")
		}
	})

	t.Run("missing header fails closed", func(t *testing.T) {
		req := newSignedRequest("")
		if ValidateRequest(req, publicURL, authToken, false, discardLogger()) {
			t.Error("missing signature header should be rejected")
		}
	})

	t.Run("missing secret fails closed", func(t *testing.T) {
		form := url.Values{"CallSid": {"CA123"}, "SpeechResult": {"yes"}}
		req := newSignedRequest(Signature(authToken, publicURL, form))
		if ValidateRequest(req, publicURL, "", false, discardLogger()) {
			t.Error("missing auth token must never be treated as skip-validation")
		}
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		req := newSignedRequest("bm90IGEgcmVhbCBzaWduYXR1cmU=")
		if ValidateRequest(req, publicURL, authToken, false, discardLogger()) {
			t.Error("wrong signature should be rejected")
		}
	})

	t.Run("bypass flag accepts anything", func(t *testing.T) {
		req := newSignedRequest("")
		if !ValidateRequest(req, publicURL, authToken, true, discardLogger()) {
			t.Error("bypass flag should accept the request")
		}
	})

	t.Run("GET uses full URL including query", func(t *testing.T) {
		getURL := "https://example.com/voice/answer?call_log_id=abc"
		req := httptest.NewRequest(http.MethodGet, "/voice/answer?call_log_id=abc", nil)
		req.Header.Set(SignatureHeader, Signature(authToken, getURL, nil))
		if !ValidateRequest(req, getURL, authToken, false, discardLogger()) {
			t.Error("GET request with query-inclusive URL should validate")
		}
	})
}
