package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Reserved signature fields. They are never part of the signed data.
const (
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"
)

// Signer computes and checks HMAC-SHA512 signatures over canonical parameter sets.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex signature of params.
func (s *Signer) Sign(params map[string]string) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(Canonicalize(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of params and compares it with signature in
// constant time, ignoring hex case.
func (s *Signer) Verify(params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Canonicalize renders params as k1=v1&k2=v2 with keys in lexicographic order
// and values unescaped. Signature fields are left out.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if isSignatureField(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// ParamsFromQuery flattens a callback query string. Only the first value of a
// repeated key is kept.
func ParamsFromQuery(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

// withoutSignature returns a copy of params that is safe to log or journal.
func withoutSignature(params map[string]string) map[string]string {
	clean := make(map[string]string, len(params))
	for k, v := range params {
		if !isSignatureField(k) {
			clean[k] = v
		}
	}
	return clean
}

func isSignatureField(k string) bool {
	return k == ParamSecureHash || k == ParamSecureHashType
}
