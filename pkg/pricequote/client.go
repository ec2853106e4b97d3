// Package pricequote is an HTTP client for the token price oracle. It returns
// the native-currency price of one whole token in wei.
package pricequote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/universalswapper/relayer/evm"
)

// DefaultTimeout is the default HTTP client timeout
const DefaultTimeout = 10 * time.Second

// DefaultRequestsPerSecond caps outbound oracle calls
const DefaultRequestsPerSecond = 5

const (
	// DefaultOnchainURL serves quotes computed from on-chain pool state
	DefaultOnchainURL = "http://localhost:4000/api/uniswap/weth-price"
	// DefaultGraphURL serves quotes computed from the subgraph
	DefaultGraphURL = "http://localhost:4000/api/uniswap_Graph/multiple-weth"
)

// Strategy selects the endpoint and response shape
type Strategy int

const (
	// Onchain responses look like [{"amountOut": "0.00025"}]
	Onchain Strategy = iota
	// Graph responses look like {"quotes": [{"quote": "0.00025"}]}
	Graph
)

func (s Strategy) String() string {
	switch s {
	case Onchain:
		return "onchain"
	case Graph:
		return "graph"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Config contains configuration for the price quote client
type Config struct {
	// URL of the oracle endpoint for the chosen strategy
	URL string
	// Timeout is the HTTP client timeout
	// Defaults to 10 seconds if not set
	Timeout time.Duration
	// RequestsPerSecond limits outbound calls; zero selects the default
	RequestsPerSecond float64
	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// TokenQuery is one entry of the oracle request body
type TokenQuery struct {
	ChainID  int64  `json:"chainId"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	AmountIn string `json:"amountIn"`
}

// QuoteRequest is the oracle request body
type QuoteRequest struct {
	Tokens []TokenQuery `json:"tokens"`
}

type onchainEntry struct {
	AmountOut string `json:"amountOut"`
}

type graphResponse struct {
	Quotes []struct {
		Quote string `json:"quote"`
	} `json:"quotes"`
}

// Client queries one oracle endpoint with one strategy
type Client struct {
	url        string
	strategy   Strategy
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for strategy
func NewClient(strategy Strategy, config Config) *Client {
	url := config.URL
	if url == "" {
		if strategy == Graph {
			url = DefaultGraphURL
		} else {
			url = DefaultOnchainURL
		}
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &Client{
		url:        url,
		strategy:   strategy,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Strategy returns the response shape this client expects
func (c *Client) Strategy() Strategy {
	return c.strategy
}

// QuoteNative returns the price of one whole token in wei
func (c *Client) QuoteNative(ctx context.Context, token evm.Token, chainID int64) (*big.Int, error) {
	quote, err := c.FetchQuote(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	price, err := evm.ParseAmount(quote, evm.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid quote %q: %w", quote, err)
	}
	return price, nil
}

// FetchQuote returns the raw decimal quote string from the oracle
func (c *Client) FetchQuote(ctx context.Context, token evm.Token, chainID int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("price oracle rate limit: %w", err)
	}

	body, err := json.Marshal(QuoteRequest{Tokens: []TokenQuery{{
		ChainID:  chainID,
		Decimals: token.Decimals,
		Symbol:   token.Symbol,
		Name:     token.Name,
		Address:  token.Address,
		AmountIn: "1",
	}}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch price quote: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("price oracle returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var quote string
	switch c.strategy {
	case Graph:
		var parsed graphResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("failed to decode graph response: %w", err)
		}
		if len(parsed.Quotes) == 0 {
			return "", fmt.Errorf("graph response has no quotes")
		}
		quote = parsed.Quotes[0].Quote
	default:
		var parsed []onchainEntry
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("failed to decode onchain response: %w", err)
		}
		if len(parsed) == 0 {
			return "", fmt.Errorf("onchain response has no entries")
		}
		quote = parsed[0].AmountOut
	}

	if strings.TrimSpace(quote) == "" {
		return "", fmt.Errorf("empty quote for %s", token.Address)
	}
	return quote, nil
}
