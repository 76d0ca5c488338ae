package payment

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/resilience"
)

// NewGatewayHTTPClient returns the traced client every adapter shares.
func NewGatewayHTTPClient(cfg config.PaymentsConfig) *http.Client {
	return &http.Client{
		Timeout:   cfg.HTTPTimeout * 2,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// ProvidersFromConfig builds all six adapters whether or not credentials are
// present; a gateway without credentials fails on first use.
func ProvidersFromConfig(cfg config.PaymentsConfig, websiteURL string, base *http.Client, logger zerolog.Logger) []Provider {
	policy := resilience.Policy{
		Timeout:         cfg.HTTPTimeout,
		MaxAttempts:     cfg.RetryAttempts,
		BaseBackoff:     cfg.RetryBaseDelay,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}
	doer := func(m Method) Doer {
		return resilience.NewHTTPClient(string(m), base, policy, logger)
	}
	live := func(env string) bool { return env == config.EnvProduction }

	return []Provider{
		ESewa{
			ProductCode: cfg.ESewa.ProductCode,
			SecretKey:   cfg.ESewa.SecretKey,
			FormURL:     cfg.ESewa.FormURL,
			StatusURL:   cfg.ESewa.StatusURL,
			Production:  live(cfg.ESewa.Env),
			HTTP:        doer(MethodESewa),
		},
		Khalti{
			SecretKey:  cfg.Khalti.SecretKey,
			BaseURL:    cfg.Khalti.BaseURL,
			WebsiteURL: websiteURL,
			Production: live(cfg.Khalti.Env),
			HTTP:       doer(MethodKhalti),
		},
		PayPal{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			BaseURL:      cfg.PayPal.BaseURL,
			BrandName:    cfg.PayPal.BrandName,
			Production:   live(cfg.PayPal.Env),
			HTTP:         doer(MethodPayPal),
			TokenClient:  base,
		},
		Stripe{
			SecretKey:  cfg.Stripe.SecretKey,
			BaseURL:    cfg.Stripe.BaseURL,
			HTTPClient: base,
			MaxRetries: int64(max(cfg.RetryAttempts-1, 0)),
		},
		IMEPay{
			MerchantCode: cfg.IMEPay.MerchantCode,
			Module:       cfg.IMEPay.Module,
			Username:     cfg.IMEPay.Username,
			Password:     cfg.IMEPay.Password,
			BaseURL:      cfg.IMEPay.BaseURL,
			CheckoutURL:  cfg.IMEPay.CheckoutURL,
			Production:   live(cfg.IMEPay.Env),
			HTTP:         doer(MethodIMEPay),
		},
		ConnectIPS{
			MerchantID:  cfg.ConnectIPS.MerchantID,
			AppID:       cfg.ConnectIPS.AppID,
			AppName:     cfg.ConnectIPS.AppName,
			Password:    cfg.ConnectIPS.Password,
			GatewayURL:  cfg.ConnectIPS.GatewayURL,
			ValidateURL: cfg.ConnectIPS.ValidateURL,
			Production:  live(cfg.ConnectIPS.Env),
			HTTP:        doer(MethodConnectIPS),
		},
	}
}
