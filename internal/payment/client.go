// Package payment предоставляет клиент внешнего платёжного шлюза.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Outcome описывает результат списания.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeDeclined Outcome = "declined"
)

// ErrNotConfigured возвращается, если адрес шлюза не задан.
var ErrNotConfigured = errors.New("payment gateway not configured")

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
// Временные ошибки (5xx, обрыв соединения) повторяются самим клиентом.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type chargeRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// ChargeResult описывает ответ шлюза на запрос списания.
type ChargeResult struct {
	Status        Outcome `json:"status"`
	TransactionID string  `json:"transaction_id,omitempty"`
}

// NewClient создаёт клиент шлюза по указанному адресу с ограниченным числом повторов.
func NewClient(baseURL string, retryMax int) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{baseURL: base, httpClient: rc}
}

// Charge списывает amount выбранным способом оплаты. reference используется как ключ
// идемпотентности, поэтому повторы не приводят к двойному списанию.
func (c *Client) Charge(ctx context.Context, amount int64, method, reference string) (*ChargeResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chargeRequest{Amount: amount, Method: method, Reference: reference})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return &ChargeResult{Status: OutcomeDeclined}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch result.Status {
	case OutcomePaid, OutcomeDeclined:
		return &result, nil
	default:
		return nil, fmt.Errorf("unexpected charge status %q", result.Status)
	}
}
