// Package oauth1 signs requests for OAuth 1.0a protected APIs (HMAC-SHA1,
// RFC 5849) such as the Twitter v2 endpoints.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is mandated by OAuth 1.0a
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
)

const (
	signatureMethod = "HMAC-SHA1"
	version         = "1.0"
)

// Credentials are the four long-lived secrets of an OAuth 1.0a user context.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Validate reports every missing credential at once.
func (c Credentials) Validate() error {
	var errs []error
	if c.ConsumerKey == "" {
		errs = append(errs, errors.New("missing consumer key"))
	}
	if c.ConsumerSecret == "" {
		errs = append(errs, errors.New("missing consumer secret"))
	}
	if c.AccessToken == "" {
		errs = append(errs, errors.New("missing access token"))
	}
	if c.AccessTokenSecret == "" {
		errs = append(errs, errors.New("missing access token secret"))
	}
	return errors.Join(errs...)
}

type Signer struct {
	creds Credentials
	nonce func() string
	now   func() time.Time
}

// NewSigner fails when any credential is empty, so a misconfigured signer
// can never reach the network.
func NewSigner(creds Credentials) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "incomplete oauth1 credentials", err)
	}
	return &Signer{
		creds: creds,
		nonce: newNonce,
		now:   time.Now,
	}, nil
}

// newNonce returns 32 hex characters from a v4 UUID (crypto/rand backed).
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Authorization returns the Authorization header value for a request with
// no form-encoded body, using a fresh nonce and the current time.
func (s *Signer) Authorization(method, rawURL string) (string, error) {
	return s.Sign(method, rawURL, s.nonce(), s.now().Unix(), nil)
}

// Sign is the deterministic core: for fixed inputs it always yields the
// same header. Query parameters of rawURL and the extra form parameters are
// part of the signature base string.
func (s *Signer) Sign(method, rawURL, nonce string, timestamp int64, extra url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": signatureMethod,
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_token":            s.creds.AccessToken,
		"oauth_version":          version,
	}

	var pairs []param
	for k, v := range oauthParams {
		pairs = append(pairs, param{key: k, value: v})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, param{key: k, value: v})
		}
	}
	for k, vs := range extra {
		for _, v := range vs {
			pairs = append(pairs, param{key: k, value: v})
		}
	}

	base := baseString(method, baseURL(u), pairs)
	oauthParams["oauth_signature"] = signature(base, s.creds.ConsumerSecret, s.creds.AccessTokenSecret)

	return header(oauthParams), nil
}

type param struct {
	key, value string
}

// baseString builds METHOD&enc(url)&enc(k=v&k=v...) with parameters sorted
// by encoded key, then encoded value.
func baseString(method, normalizedURL string, params []param) string {
	encoded := make([]param, len(params))
	for i, p := range params {
		encoded[i] = param{key: PercentEncode(p.key), value: PercentEncode(p.value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].key == encoded[j].key {
			return encoded[i].value < encoded[j].value
		}
		return encoded[i].key < encoded[j].key
	})

	parts := make([]string, len(encoded))
	for i, p := range encoded {
		parts[i] = p.key + "=" + p.value
	}

	return strings.ToUpper(method) + "&" + PercentEncode(normalizedURL) + "&" + PercentEncode(strings.Join(parts, "&"))
}

func signature(base, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func header(oauthParams map[string]string) string {
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = PercentEncode(k) + `="` + PercentEncode(oauthParams[k]) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// baseURL is scheme://host[:port]/path with scheme and host lower-cased and
// default ports dropped.
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "https" && strings.HasSuffix(host, ":443")) || (scheme == "http" && strings.HasSuffix(host, ":80")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// PercentEncode applies RFC 3986 encoding: everything except unreserved
// characters becomes %XX with upper-case hex.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
