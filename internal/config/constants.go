// internal/config/constants.go
package config

// アプリケーション情報
const (
	AppName    = "CoursePlatform"
	AppVersion = "1.0.0"
)

// デフォルト設定値
const (
	DefaultServerPort    = ":8080"
	DefaultLogLevel      = "info"
	DefaultRecentLimit   = 10
	DefaultAuthEnabled   = true
	DefaultPassingScore  = 70
)

// 決済プロバイダのエンドポイント
const DefaultPaymentAPIEndpoint = "https://api.razorpay.com/v1"
