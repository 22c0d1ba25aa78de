package swiftpass

import (
	"net/http"
	"time"
)

type Option func(*options)

type options struct {
	merchantID     string
	appID          string
	signKey        string
	baseURL        string
	notifyURL      string
	httpClient     *http.Client
	headers        map[string]string
	timeout        time.Duration
	maxAmountCents int64
}

func defaultOptions() options {
	return options{
		baseURL:        "https://pay.swiftpass.example.com/gateway",
		timeout:        15 * time.Second,
		headers:        map[string]string{},
		maxAmountCents: 5_000_00,
	}
}

// WithMerchantID configures the merchant identifier.
func WithMerchantID(id string) Option {
	return func(o *options) { o.merchantID = id }
}

// WithAppID sets the application identifier issued by the gateway.
func WithAppID(id string) Option {
	return func(o *options) { o.appID = id }
}

// WithSignKey sets the key used to sign request bodies.
func WithSignKey(key string) Option {
	return func(o *options) { o.signKey = key }
}

// WithBaseURL overrides the gateway base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithNotifyURL sets the asynchronous notification callback URL.
func WithNotifyURL(url string) Option {
	return func(o *options) { o.notifyURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithTimeout customizes the client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxAmount caps the per-charge amount (in cents) eligible for the
// aggregated flow. Zero removes the cap.
func WithMaxAmount(cents int64) Option {
	return func(o *options) { o.maxAmountCents = cents }
}
