package model

import "github.com/google/uuid"

// CreateOrderRequest は決済注文作成リクエストDTO
type CreateOrderRequest struct {
	CourseID uuid.UUID `json:"course_id" validate:"required"`
}

// CreateOrderResponse はフロントの決済ウィジェットに渡す注文情報
type CreateOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"` // 最小通貨単位 (INRならパイサ)
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// VerifyPaymentRequest は決済確認リクエストDTO
// signature は HMAC-SHA256("orderId|paymentId") の16進文字列
type VerifyPaymentRequest struct {
	OrderID   string    `json:"order_id" validate:"required"`
	PaymentID string    `json:"payment_id" validate:"required"`
	Signature string    `json:"signature" validate:"required"`
	CourseID  uuid.UUID `json:"course_id" validate:"required"`
}

// VerifyPaymentResponse は決済確認のレスポンスDTO
type VerifyPaymentResponse struct {
	Enrollment *Enrollment     `json:"enrollment"`
	Payment    *PaymentSummary `json:"payment"`
}

// PaymentSummary は呼び出し元に返す決済の要約
type PaymentSummary struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}

// WebhookEvent は決済プロバイダからのWebhookイベント
// 署名検証は生のボディに対して行うため、デコードは検証後
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity WebhookPaymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity WebhookOrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type WebhookPaymentEntity struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	Amount           int64             `json:"amount"`
	Status           string            `json:"status"`
	ErrorCode        string            `json:"error_code"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

type WebhookOrderEntity struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}
