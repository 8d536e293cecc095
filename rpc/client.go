package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/tolelom/tolmarket/core"
)

// Client calls a marketd JSON-RPC endpoint. Transport failures and 5xx
// responses are retried. A retried sendTx is rejected by id if the first
// attempt already reached the mempool or a block.
type Client struct {
	url       string
	authToken string
	http      *retryablehttp.Client
	nextID    atomic.Int64
}

// NewClient returns a Client for url. authToken may be empty.
func NewClient(url, authToken string) *Client {
	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = 3
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	return &Client{url: url, authToken: authToken, http: hc}
}

// Call invokes method with params and decodes the result into out. A
// JSON-RPC error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: raw})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	zap.L().Debug("rpc call", zap.String("method", method))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%s: decode response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// SendTx submits a signed transaction and returns its id.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (string, error) {
	var res SendTxResult
	if err := c.Call(ctx, "sendTx", tx, &res); err != nil {
		return "", err
	}
	return res.TxID, nil
}

// Balance returns the balance and next nonce of address.
func (c *Client) Balance(ctx context.Context, address string) (BalanceResult, error) {
	var res BalanceResult
	err := c.Call(ctx, "getBalance", map[string]string{"address": address}, &res)
	return res, err
}

// Market returns the deployed marketplace configuration.
func (c *Client) Market(ctx context.Context) (*core.MarketConfig, error) {
	var res core.MarketConfig
	if err := c.Call(ctx, "getMarket", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Listing returns one listing.
func (c *Client) Listing(ctx context.Context, id uint64) (ListingResult, error) {
	var res ListingResult
	err := c.Call(ctx, "getListing", map[string]uint64{"id": id}, &res)
	return res, err
}

// UnsoldListings returns every listing currently for sale.
func (c *Client) UnsoldListings(ctx context.Context) ([]ListingResult, error) {
	var res []ListingResult
	err := c.Call(ctx, "getUnsoldListings", nil, &res)
	return res, err
}

// Holdings returns the sold listings held by address.
func (c *Client) Holdings(ctx context.Context, address string) ([]ListingResult, error) {
	var res []ListingResult
	err := c.Call(ctx, "getHoldings", map[string]string{"address": address}, &res)
	return res, err
}

// Receipt returns the receipt of a committed transaction.
func (c *Client) Receipt(ctx context.Context, txID string) (*core.Receipt, error) {
	var res core.Receipt
	if err := c.Call(ctx, "getReceipt", map[string]string{"tx_id": txID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
