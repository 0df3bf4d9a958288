package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultBaseUrl = "https://api.coingecko.com/api/v3"
	RequestTimeout = 30 * time.Second
)

type CoingeckoConfig struct {
	BaseUrl string
	ApiKey  string
}

type CoingeckoClient struct {
	httpClient *http.Client
	Logger     *zap.Logger
	Config     *CoingeckoConfig
}

// NewCoingeckoClient uses hc as is when given; otherwise a client with RequestTimeout.
func NewCoingeckoClient(hc *http.Client, l *zap.Logger, cfg *CoingeckoConfig) *CoingeckoClient {
	if hc == nil {
		hc = &http.Client{Timeout: RequestTimeout}
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = DefaultBaseUrl
	}
	return &CoingeckoClient{
		httpClient: hc,
		Logger:     l,
		Config:     cfg,
	}
}

// GetPrice returns the token price in the given fiat currency. A non-200 answer or a
// response without the requested pair is "price unavailable": (nil, nil).
func (cc *CoingeckoClient) GetPrice(ctx context.Context, tokenId string, currency string) (*decimal.Decimal, error) {
	values := url.Values{
		"ids":           []string{tokenId},
		"vs_currencies": []string{currency},
	}
	if cc.Config.ApiKey != "" {
		values.Set("x_cg_demo_api_key", cc.Config.ApiKey)
	}
	fullUrl := fmt.Sprintf("%s/simple/price?%s", strings.TrimRight(cc.Config.BaseUrl, "/"), values.Encode())

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, http.NoBody)
	if err != nil {
		// the parse error would quote the url, and with it the api key
		return nil, errors.Errorf("coingecko price request for %s could not be built", tokenId)
	}
	req.Header.Set("Accept", "application/json")

	res, err := cc.httpClient.Do(req)
	if err != nil {
		cc.Logger.Sugar().Warnw("Failed to perform the CoinGecko HTTP request",
			zap.String("tokenId", tokenId),
		)
		return nil, errors.Errorf("coingecko price request failed for %s", tokenId)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		cc.Logger.Sugar().Warnw("CoinGecko returned a non-200 status",
			zap.Int("status", res.StatusCode),
			zap.String("tokenId", tokenId),
		)
		return nil, nil
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the CoinGecko response")
	}
	prices := make(map[string]map[string]decimal.Decimal)
	if err := json.Unmarshal(bodyBytes, &prices); err != nil {
		cc.Logger.Sugar().Errorw("Failed to parse the CoinGecko response", zap.Error(err))
		return nil, errors.Wrap(err, "failed to parse the CoinGecko response")
	}

	byCurrency, ok := prices[tokenId]
	if !ok {
		return nil, nil
	}
	price, ok := byCurrency[strings.ToLower(currency)]
	if !ok {
		return nil, nil
	}
	return &price, nil
}
