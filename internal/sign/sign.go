// Package sign implements the HMAC-SHA256 request signing the
// authenticated venues (Coinbase full-feed, OKX) require over their
// WebSocket and REST control channels. It follows the corpus's own
// idiom of reaching for stdlib crypto/sha256 rather than a third-party
// signing library (internal/data/envelope.go's checksum is the only
// other hashing use anywhere in the retrieval pack).
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// CoinbaseWS signs the authenticated-feed subscribe payload:
// base64(HMAC-SHA256(base64-decode(secret), timestamp+"GET"+"/users/self/verify")).
// secretB64 is Coinbase's own base64-encoded API secret.
func CoinbaseWS(secretB64, timestamp string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return "", err
	}
	return sign(key, timestamp+"GET"+"/users/self/verify"), nil
}

// CoinbaseREST signs an arbitrary REST request: base64(HMAC-SHA256(
// base64-decode(secret), timestamp+method+path+body)).
func CoinbaseREST(secretB64, timestamp, method, path, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return "", err
	}
	return sign(key, timestamp+method+path+body), nil
}

// OKX signs a REST or WS request: base64(HMAC-SHA256(secret,
// timestamp+method+path+body)). Unlike Coinbase, OKX's secret is used
// as-is, not base64-decoded first.
func OKX(secret, timestamp, method, path, body string) string {
	return sign([]byte(secret), timestamp+method+path+body)
}

func sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
