// internal/service/payment_service_test.go
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"go_course_platform/internal/config"
	"go_course_platform/internal/model"
	"go_course_platform/internal/payment"
	paymentmocks "go_course_platform/internal/payment/mocks"
	"go_course_platform/internal/repository/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testPaymentKeySecret     = "test_key_secret"
	testPaymentWebhookSecret = "test_webhook_secret"
)

// --- テストヘルパー関数 ---
func setupTestDBPayment() *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic("failed to connect database for testing: " + err.Error())
	}
	return db
}

// HMAC-SHA256 の期待値を生成する
func paymentSignHex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

type paymentTestMocks struct {
	client     *paymentmocks.Client
	courseRepo *mocks.CourseRepository
	enrollRepo *mocks.EnrollmentRepository
	userRepo   *mocks.UserRepository
}

func newPaymentServiceForTest(db *gorm.DB) (PaymentService, *paymentTestMocks) {
	m := &paymentTestMocks{
		client:     new(paymentmocks.Client),
		courseRepo: new(mocks.CourseRepository),
		enrollRepo: new(mocks.EnrollmentRepository),
		userRepo:   new(mocks.UserRepository),
	}
	cfg := &config.Config{}
	cfg.Payment.KeyID = "rzp_test_key"
	cfg.Payment.KeySecret = testPaymentKeySecret
	cfg.Payment.WebhookSecret = testPaymentWebhookSecret

	enrollmentSvc := NewEnrollmentService(db, m.enrollRepo, m.courseRepo, m.userRepo, &LogMailer{})
	verifier := payment.NewVerifier(testPaymentKeySecret, testPaymentWebhookSecret)
	svc := NewPaymentService(db, m.courseRepo, m.enrollRepo, enrollmentSvc, m.client, verifier, cfg)
	return svc, m
}

func (m *paymentTestMocks) reset() {
	m.client.Mock = mock.Mock{}
	m.courseRepo.Mock = mock.Mock{}
	m.enrollRepo.Mock = mock.Mock{}
	m.userRepo.Mock = mock.Mock{}
}

func (m *paymentTestMocks) assertExpectations(t *testing.T) {
	m.client.AssertExpectations(t)
	m.courseRepo.AssertExpectations(t)
	m.enrollRepo.AssertExpectations(t)
	m.userRepo.AssertExpectations(t)
}

// --- Test CreateOrder ---
func Test_paymentService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBPayment()
	paymentService, m := newPaymentServiceForTest(db)

	userID := uuid.New()
	courseID := uuid.New()

	paidCourse := &model.Course{CourseID: courseID, Title: "Go実践", Price: 499.50, Currency: "INR", Published: true}
	freeCourse := &model.Course{CourseID: courseID, Title: "Go入門", Price: 0, Currency: "INR", Published: true}

	t.Run("正常系: 注文作成 (金額はサーバ側で最小通貨単位に換算)", func(t *testing.T) {
		m.reset()
		m.courseRepo.On("FindByID", ctx, db, courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(nil, model.ErrNotFound).Once()
		m.client.On("CreateOrder", ctx, mock.MatchedBy(func(params *payment.CreateOrderParams) bool {
			return params.Amount == 49950 &&
				params.Currency == "INR" &&
				params.Notes["course_id"] == courseID.String() &&
				params.Notes["user_id"] == userID.String()
		})).Return(&payment.Order{ID: "order_Mk123", Amount: 49950, Currency: "INR", Status: "created"}, nil).Once()

		resp, err := paymentService.CreateOrder(ctx, userID, &model.CreateOrderRequest{CourseID: courseID})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "order_Mk123", resp.OrderID)
		assert.Equal(t, int64(49950), resp.Amount)
		assert.Equal(t, "INR", resp.Currency)
		assert.Equal(t, "rzp_test_key", resp.KeyID)
		m.assertExpectations(t)
	})

	t.Run("異常系: 無料コースに注文は作れない", func(t *testing.T) {
		m.reset()
		m.courseRepo.On("FindByID", ctx, db, courseID).Return(freeCourse, nil).Once()

		resp, err := paymentService.CreateOrder(ctx, userID, &model.CreateOrderRequest{CourseID: courseID})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})

	t.Run("異常系: 登録済みコースの二重購入", func(t *testing.T) {
		m.reset()
		existing := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}
		m.courseRepo.On("FindByID", ctx, db, courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(existing, nil).Once()

		resp, err := paymentService.CreateOrder(ctx, userID, &model.CreateOrderRequest{CourseID: courseID})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})

	t.Run("異常系: 非公開コース", func(t *testing.T) {
		m.reset()
		unpublished := &model.Course{CourseID: courseID, Price: 499.50, Published: false}
		m.courseRepo.On("FindByID", ctx, db, courseID).Return(unpublished, nil).Once()

		resp, err := paymentService.CreateOrder(ctx, userID, &model.CreateOrderRequest{CourseID: courseID})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})
}

// --- Test VerifyAndEnroll ---
func Test_paymentService_VerifyAndEnroll(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBPayment()
	paymentService, m := newPaymentServiceForTest(db)

	userID := uuid.New()
	courseID := uuid.New()
	const orderID = "order_Mk123"
	const paymentID = "pay_Nx456"
	validSig := paymentSignHex(testPaymentKeySecret, orderID+"|"+paymentID)

	paidCourse := &model.Course{CourseID: courseID, Title: "Go実践", Price: 499.50, Currency: "INR", Published: true}
	testUser := &model.User{UserID: userID, Name: "テスト太郎", Email: "taro@example.com"}

	t.Run("正常系: 署名検証から受講登録まで", func(t *testing.T) {
		m.reset()
		m.client.On("FetchPayment", ctx, paymentID).Return(&payment.Payment{
			ID:      paymentID,
			OrderID: orderID,
			Amount:  49950,
			Status:  payment.StatusCaptured,
		}, nil).Once()
		// EnrollmentService.Create 経由の登録
		m.courseRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, mock.AnythingOfType("*gorm.DB"), userID, courseID).
			Return(nil, model.ErrNotFound).Once()
		m.enrollRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Enrollment")).
			Run(func(args mock.Arguments) {
				enrollment := args.Get(2).(*model.Enrollment)
				require.NotNil(t, enrollment.PaymentID)
				assert.Equal(t, paymentID, *enrollment.PaymentID)
				// 最小通貨単位から通常単位に戻っていること
				assert.Equal(t, 499.50, enrollment.AmountPaid)
			}).Return(nil).Once()
		m.userRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), userID).Return(testUser, nil).Once()

		resp, err := paymentService.VerifyAndEnroll(ctx, userID, &model.VerifyPaymentRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: validSig,
			CourseID:  courseID,
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, model.EnrollmentActive, resp.Enrollment.Status)
		assert.Equal(t, paymentID, resp.Payment.PaymentID)
		assert.Equal(t, 499.50, resp.Payment.Amount)
		assert.Equal(t, payment.StatusCaptured, resp.Payment.Status)
		m.assertExpectations(t)
	})

	t.Run("異常系: 署名不一致はプロバイダ照会の前に弾く", func(t *testing.T) {
		m.reset()
		// FetchPayment は呼ばれない

		resp, err := paymentService.VerifyAndEnroll(ctx, userID, &model.VerifyPaymentRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: paymentSignHex("wrong_secret", orderID+"|"+paymentID),
			CourseID:  courseID,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidSignature)
		assert.Nil(t, resp)
		m.client.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	t.Run("異常系: 決済が captured/authorized 以外", func(t *testing.T) {
		m.reset()
		m.client.On("FetchPayment", ctx, paymentID).Return(&payment.Payment{
			ID:      paymentID,
			OrderID: orderID,
			Amount:  49950,
			Status:  "failed",
		}, nil).Once()

		resp, err := paymentService.VerifyAndEnroll(ctx, userID, &model.VerifyPaymentRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: validSig,
			CourseID:  courseID,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})

	t.Run("異常系: 決済の注文IDがリクエストと一致しない", func(t *testing.T) {
		m.reset()
		m.client.On("FetchPayment", ctx, paymentID).Return(&payment.Payment{
			ID:      paymentID,
			OrderID: "order_other",
			Amount:  49950,
			Status:  payment.StatusCaptured,
		}, nil).Once()

		resp, err := paymentService.VerifyAndEnroll(ctx, userID, &model.VerifyPaymentRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: validSig,
			CourseID:  courseID,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidSignature)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})

	t.Run("異常系: 検証は通ったが既に登録済み", func(t *testing.T) {
		m.reset()
		m.client.On("FetchPayment", ctx, paymentID).Return(&payment.Payment{
			ID:      paymentID,
			OrderID: orderID,
			Amount:  49950,
			Status:  payment.StatusCaptured,
		}, nil).Once()
		existing := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}
		m.courseRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, mock.AnythingOfType("*gorm.DB"), userID, courseID).
			Return(existing, nil).Once()

		resp, err := paymentService.VerifyAndEnroll(ctx, userID, &model.VerifyPaymentRequest{
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: validSig,
			CourseID:  courseID,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})
}

// --- Test HandleWebhook ---
func Test_paymentService_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBPayment()
	paymentService, m := newPaymentServiceForTest(db)

	userID := uuid.New()
	courseID := uuid.New()
	const paymentID = "pay_Nx456"

	paidCourse := &model.Course{CourseID: courseID, Title: "Go実践", Price: 499.50, Currency: "INR", Published: true}
	testUser := &model.User{UserID: userID, Name: "テスト太郎", Email: "taro@example.com"}

	capturedBody := func(uID, cID string) []byte {
		return []byte(fmt.Sprintf(
			`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"%s","order_id":"order_Mk123","amount":49950,"status":"captured","notes":{"user_id":"%s","course_id":"%s"}}}}}`,
			paymentID, uID, cID,
		))
	}

	t.Run("正常系: payment.captured で受講登録を作成", func(t *testing.T) {
		m.reset()
		body := capturedBody(userID.String(), courseID.String())

		m.courseRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, mock.AnythingOfType("*gorm.DB"), userID, courseID).
			Return(nil, model.ErrNotFound).Once()
		m.enrollRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Enrollment")).
			Run(func(args mock.Arguments) {
				enrollment := args.Get(2).(*model.Enrollment)
				require.NotNil(t, enrollment.PaymentID)
				assert.Equal(t, paymentID, *enrollment.PaymentID)
				assert.Equal(t, 499.50, enrollment.AmountPaid)
			}).Return(nil).Once()
		m.userRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), userID).Return(testUser, nil).Once()

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("正常系: 再送Webhookの重複登録は成功扱い", func(t *testing.T) {
		m.reset()
		body := capturedBody(userID.String(), courseID.String())
		existing := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}

		m.courseRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), courseID).Return(paidCourse, nil).Once()
		m.enrollRepo.On("FindByUserAndCourse", ctx, mock.AnythingOfType("*gorm.DB"), userID, courseID).
			Return(existing, nil).Once()

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("正常系: notes が不正ならACKして捨てる", func(t *testing.T) {
		m.reset()
		body := capturedBody("not-a-uuid", courseID.String())

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("正常系: payment.failed はログのみでACK", func(t *testing.T) {
		m.reset()
		body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_Nx456","error_code":"BAD_REQUEST_ERROR","error_description":"Payment failed"}}}}`)

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("正常系: 未知のイベントはACKして再送を止める", func(t *testing.T) {
		m.reset()
		body := []byte(`{"event":"refund.processed","payload":{}}`)

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.NoError(t, err)
		m.assertExpectations(t)
	})

	t.Run("異常系: 署名不一致は何も処理しない", func(t *testing.T) {
		m.reset()
		body := capturedBody(userID.String(), courseID.String())

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex("wrong_secret", string(body)))

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidSignature)
		m.assertExpectations(t)
	})

	t.Run("異常系: 署名は正しいがボディが壊れている", func(t *testing.T) {
		m.reset()
		body := []byte(`{not json`)

		err := paymentService.HandleWebhook(ctx, body, paymentSignHex(testPaymentWebhookSecret, string(body)))

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidInput)
		m.assertExpectations(t)
	})
}
