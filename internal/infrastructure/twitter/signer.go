package twitter

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	signatureMethod = "HMAC-SHA1"
	oauthVersion    = "1.0"
)

// Credentials carries the four OAuth 1.0a secrets for the publishing API.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Signer computes OAuth 1.0a request signatures and authorization headers.
type Signer struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

// NewSigner builds a signer with a fresh uuid nonce per request.
func NewSigner(creds Credentials) *Signer {
	return &Signer{
		creds: creds,
		nonce: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		now:   time.Now,
	}
}

// Sign computes the base64 HMAC-SHA1 signature over the canonical base
// string for the given request parameters.
func Sign(method, rawURL string, params map[string]string, consumerSecret, tokenSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, percentEncode(k))
	}
	sort.Strings(keys)

	encoded := make(map[string]string, len(params))
	for k, v := range params {
		encoded[percentEncode(k)] = percentEncode(v)
	}

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+encoded[k])
	}

	base := strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(strings.Join(pairs, "&"))
	signingKey := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AuthorizationHeader assembles the full OAuth header for one request,
// generating a fresh nonce and timestamp. Reusing either would be rejected
// by the API and is a replay risk.
func (s *Signer) AuthorizationHeader(method, rawURL string) string {
	params := map[string]string{
		"oauth_consumer_key":     s.creds.ConsumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.creds.AccessToken,
		"oauth_version":          oauthVersion,
	}
	params["oauth_signature"] = Sign(method, rawURL, params, s.creds.ConsumerSecret, s.creds.AccessTokenSecret)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(params[k])))
	}

	return "OAuth " + strings.Join(parts, ", ")
}

// percentEncode implements RFC 3986 encoding; url.QueryEscape is close but
// turns spaces into '+', which breaks the signature base string.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
