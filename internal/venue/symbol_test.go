package venue_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/venue"
)

func TestCoinbaseSymbolTranslationRoundTrip(t *testing.T) {
	cv := venue.NewCoinbaseVenue("ws-feed.test", "", "", "", zerolog.Nop())
	cp := model.NewCurrencyPair(model.BTC, model.USD)
	require.Equal(t, "BTC-USD", cv.TranslateSymbolToExchangeSpecific(cp))

	back, err := cv.TranslateSymbol("BTC-USD")
	require.NoError(t, err)
	require.Equal(t, cp, back)
}

func TestOKXSymbolTranslationRoundTrip(t *testing.T) {
	ov := venue.NewOKXVenue("ws.okx.test", "", "", "", zerolog.Nop())
	cp := model.NewCurrencyPair(model.ETH, model.BTC)
	require.Equal(t, "ETH-BTC", ov.TranslateSymbolToExchangeSpecific(cp))

	back, err := ov.TranslateSymbol("ETH-BTC")
	require.NoError(t, err)
	require.Equal(t, cp, back)

	_, err = ov.TranslateSymbol("not-a-pair-at-all")
	require.Error(t, err)
}

func TestOKXSignedRESTHeaders(t *testing.T) {
	ov := venue.NewOKXVenue("ws.okx.test", "key123", "secret456", "phrase789", zerolog.Nop())
	h := ov.SignedRESTHeaders("GET", "/api/v5/account/balance", "")
	require.Equal(t, "key123", h["OK-ACCESS-KEY"])
	require.Equal(t, "phrase789", h["OK-ACCESS-PASSPHRASE"])
	require.NotEmpty(t, h["OK-ACCESS-SIGN"])
	require.NotEmpty(t, h["OK-ACCESS-TIMESTAMP"])
}
