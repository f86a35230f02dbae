// internal/payment/client.go
package payment

import (
	"context"
	"fmt"
	"time"

	"go_course_platform/internal/config"
	"go_course_platform/internal/middleware"

	"github.com/go-resty/resty/v2"
)

// 決済プロバイダ側のステータス
const (
	StatusCaptured   = "captured"
	StatusAuthorized = "authorized"
)

// Order は決済プロバイダに作成した注文
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // 最小通貨単位
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment は決済プロバイダから取得した決済情報
type Payment struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	Amount    int64             `json:"amount"` // 最小通貨単位
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Method    string            `json:"method"`
	CreatedAt int64             `json:"created_at"` // unix秒
	Notes     map[string]string `json:"notes"`
}

// CreateOrderParams は注文作成のパラメータ
type CreateOrderParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Client は決済プロバイダのREST APIクライアント
type Client interface {
	CreateOrder(ctx context.Context, params *CreateOrderParams) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type restyClient struct {
	http *resty.Client
}

// NewClient はBasic認証付きのRESTクライアントを生成します
func NewClient(cfg *config.PaymentConfig) Client {
	client := resty.New().
		SetBaseURL(cfg.APIEndpoint).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	return &restyClient{http: client}
}

func (c *restyClient) CreateOrder(ctx context.Context, params *CreateOrderParams) (*Order, error) {
	logger := middleware.GetLogger(ctx)

	var order Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(params).
		SetResult(&order).
		Post("/orders")
	if err != nil {
		logger.Error("Payment provider order creation failed", "error", err)
		return nil, fmt.Errorf("payment.CreateOrder: %w", err)
	}
	if resp.IsError() {
		logger.Error("Payment provider returned error on order creation",
			"status", resp.StatusCode(),
		)
		return nil, fmt.Errorf("payment.CreateOrder: provider returned status %d", resp.StatusCode())
	}
	return &order, nil
}

func (c *restyClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	logger := middleware.GetLogger(ctx)

	var payment Payment
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payment).
		Get("/payments/" + paymentID)
	if err != nil {
		logger.Error("Payment provider fetch failed", "error", err, "payment_id", paymentID)
		return nil, fmt.Errorf("payment.FetchPayment: %w", err)
	}
	if resp.IsError() {
		logger.Error("Payment provider returned error on fetch",
			"status", resp.StatusCode(),
			"payment_id", paymentID,
		)
		return nil, fmt.Errorf("payment.FetchPayment: provider returned status %d", resp.StatusCode())
	}
	return &payment, nil
}
