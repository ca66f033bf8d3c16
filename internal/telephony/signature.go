package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"sort"
)

// SignatureHeader is the header Twilio signs webhook requests with.
const SignatureHeader = "X-Twilio-Signature"

// Signature computes the webhook signature for a request: the full URL
// concatenated with every form key+value in sorted key order, HMAC-SHA1
// hashed with the account auth token and base64 encoded. For GET requests
// pass nil form values and a URL that includes the query string.
func Signature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(form.Get(k)))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateRequest reports whether req carries a valid provider signature.
// publicURL must be the externally visible URL of the endpoint: for POST
// requests the URL without any extra query rewriting (the query string the
// provider used is included as-is), for GET requests the full URL including
// the query string.
//
// Fails closed: a missing header or an empty auth token rejects the request.
// A missing secret is never treated as "skip validation". The bypass flag is
// an explicit escape hatch for controlled testing and is logged loudly.
//
// The caller is expected to have called req.ParseForm already; the parsed
// form is reused so the body is not consumed a second time.
func ValidateRequest(req *http.Request, publicURL, authToken string, bypass bool, logger *log.Logger) bool {
	if bypass {
		logger.Printf("signature: VALIDATION BYPASSED for %s (testing flag set)", req.URL.Path)
		return true
	}

	header := req.Header.Get(SignatureHeader)
	if header == "" {
		logger.Printf("signature: missing %s header on %s", SignatureHeader, req.URL.Path)
		return false
	}
	if authToken == "" {
		logger.Printf("signature: no auth token available for %s, rejecting", req.URL.Path)
		return false
	}

	var form url.Values
	if req.Method == http.MethodPost {
		form = req.PostForm
	}

	want := Signature(authToken, publicURL, form)
	if subtle.ConstantTimeCompare([]byte(want), []byte(header)) != 1 {
		logger.Printf("signature: mismatch on %s", req.URL.Path)
		return false
	}
	return true
}
