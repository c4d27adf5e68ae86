// Package longport implements the broker.Trader and
// broker.QuoteProvider interfaces over the Longport OpenAPI HTTP
// gateway, with order status pushes arriving on a websocket channel.
package longport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"warrant-trader/pkg/broker"
)

// Config holds Longport credentials and endpoints.
type Config struct {
	BaseURL     string
	PushURL     string
	AppKey      string
	AppSecret   string
	AccessToken string
}

// Client is the HTTP side of the brokerage connection.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a client with sane defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapi.longportapp.com"
	}
	if cfg.PushURL == "" {
		cfg.PushURL = "wss://openapi-push.longportapp.com/v2"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is the gateway's error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("longport api error %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("X-Api-Key", c.cfg.AppKey)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", res.StatusCode, err)
	}
	if res.StatusCode != http.StatusOK || envelope.Code != 0 {
		return &apiError{Code: envelope.Code, Message: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// GetAccountSnapshot fetches cash and buy power for the account.
func (c *Client) GetAccountSnapshot(ctx context.Context) (*broker.AccountSnapshot, error) {
	var data struct {
		List []struct {
			TotalCash      string `json:"total_cash"`
			AvailableCash  string `json:"available_cash"`
			MaxFinanceAmt  string `json:"max_finance_amount"`
			Currency       string `json:"currency"`
			RiskLevel      int    `json:"risk_level"`
			MarginCallCash string `json:"margin_call"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/asset/account", nil, nil, &data); err != nil {
		return nil, err
	}
	if len(data.List) == 0 {
		return nil, fmt.Errorf("longport: empty account response")
	}
	a := data.List[0]
	return &broker.AccountSnapshot{
		TotalCash:      parseFloat(a.TotalCash),
		AvailableCash:  parseFloat(a.AvailableCash),
		BuyPower:       parseFloat(a.MaxFinanceAmt),
		Currency:       a.Currency,
		RiskLevel:      a.RiskLevel,
		MarginCallCash: parseFloat(a.MarginCallCash),
		RetrievedAt:    time.Now(),
	}, nil
}

// GetStockPositions lists held instruments, optionally filtered.
func (c *Client) GetStockPositions(ctx context.Context, symbols []string) ([]broker.StockPosition, error) {
	query := url.Values{}
	for _, s := range symbols {
		query.Add("symbol", s)
	}
	var data struct {
		List []struct {
			StockInfo []struct {
				Symbol       string `json:"symbol"`
				Quantity     string `json:"quantity"`
				AvailableQty string `json:"available_quantity"`
				CostPrice    string `json:"cost_price"`
				Currency     string `json:"currency"`
			} `json:"stock_info"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/asset/stock", query, nil, &data); err != nil {
		return nil, err
	}
	var out []broker.StockPosition
	for _, channel := range data.List {
		for _, p := range channel.StockInfo {
			out = append(out, broker.StockPosition{
				Symbol:        p.Symbol,
				Quantity:      parseInt(p.Quantity),
				AvailableQty:  parseInt(p.AvailableQty),
				CostPrice:     parseFloat(p.CostPrice),
				Currency:      p.Currency,
				LastUpdatedMs: time.Now().UnixMilli(),
			})
		}
	}
	return out, nil
}

// GetPendingOrders lists open (non-terminal) orders for the symbols.
func (c *Client) GetPendingOrders(ctx context.Context, symbols []string) ([]broker.PendingOrder, error) {
	query := url.Values{}
	for _, s := range symbols {
		query.Add("symbol", s)
	}
	query.Set("status", "active")
	return c.fetchOrders(ctx, "/v1/trade/order/today", query)
}

// GetTodayOrders lists every order of the current trading day.
func (c *Client) GetTodayOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	return c.fetchOrders(ctx, "/v1/trade/order/today", nil)
}

func (c *Client) fetchOrders(ctx context.Context, path string, query url.Values) ([]broker.PendingOrder, error) {
	var data struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &data); err != nil {
		return nil, err
	}
	out := make([]broker.PendingOrder, 0, len(data.Orders))
	for _, o := range data.Orders {
		out = append(out, o.toPendingOrder())
	}
	return out, nil
}

// SubmitOrder places a new order.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	body := map[string]any{
		"symbol":             req.Symbol,
		"order_type":         string(req.Type),
		"side":               string(req.Side),
		"submitted_price":    formatPrice(req.Price),
		"submitted_quantity": strconv.FormatInt(req.Quantity, 10),
		"time_in_force":      "Day",
		"remark":             req.Remark,
	}
	if req.OutsideTH {
		body["outside_rth"] = "ANY_SIDE"
	}
	var data struct {
		OrderID string `json:"order_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/trade/order", nil, body, &data); err != nil {
		return broker.OrderResult{}, err
	}
	return broker.OrderResult{OrderID: data.OrderID, Status: broker.StatusNew}, nil
}

// ReplaceOrder amends price (and optionally quantity) on a resting order.
func (c *Client) ReplaceOrder(ctx context.Context, orderID string, price float64, quantity int64) error {
	body := map[string]any{
		"order_id": orderID,
		"price":    formatPrice(price),
	}
	if quantity > 0 {
		body["quantity"] = strconv.FormatInt(quantity, 10)
	}
	return c.do(ctx, http.MethodPut, "/v1/trade/order", nil, body, nil)
}

// CancelOrder withdraws a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	query := url.Values{}
	query.Set("order_id", orderID)
	return c.do(ctx, http.MethodDelete, "/v1/trade/order", query, nil, nil)
}

// GetQuote returns the last trade price for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	var data struct {
		SecuQuote []struct {
			Symbol   string `json:"symbol"`
			LastDone string `json:"last_done"`
		} `json:"secu_quote"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/quote/quote", query, nil, &data); err != nil {
		return 0, err
	}
	if len(data.SecuQuote) == 0 {
		return 0, fmt.Errorf("longport: no quote for %s", symbol)
	}
	return parseFloat(data.SecuQuote[0].LastDone), nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 3, 64)
}
