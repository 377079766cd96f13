package sign_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdgateway/internal/sign"
)

func TestCoinbaseWS(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret-key"))
	got, err := sign.CoinbaseWS(secret, "1690000000")
	require.NoError(t, err)

	key, _ := base64.StdEncoding.DecodeString(secret)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("1690000000" + "GET" + "/users/self/verify"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, got)
}

func TestCoinbaseWSBadSecret(t *testing.T) {
	_, err := sign.CoinbaseWS("not-valid-base64!!", "1690000000")
	require.Error(t, err)
}

func TestCoinbaseREST(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("rest-secret"))
	got, err := sign.CoinbaseREST(secret, "100", "POST", "/orders", `{"a":1}`)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	again, err := sign.CoinbaseREST(secret, "100", "POST", "/orders", `{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, got, again, "signing must be deterministic for identical inputs")
}

func TestOKX(t *testing.T) {
	got := sign.OKX("okx-secret", "2023-01-01T00:00:00.000Z", "GET", "/api/v5/account/balance", "")

	mac := hmac.New(sha256.New, []byte("okx-secret"))
	mac.Write([]byte("2023-01-01T00:00:00.000Z" + "GET" + "/api/v5/account/balance"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, got)
}

func TestOKXDiffersByPath(t *testing.T) {
	a := sign.OKX("secret", "ts", "GET", "/a", "")
	b := sign.OKX("secret", "ts", "GET", "/b", "")
	require.NotEqual(t, a, b)
}
