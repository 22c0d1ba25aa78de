package lakala

import (
	"net/http"
	"time"
)

type Option func(*options)

type options struct {
	merchantNo string
	termNo     string
	signKey    string
	baseURL    string
	notifyURL  string
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
}

func defaultOptions() options {
	return options{
		baseURL: "https://openapi.lakala.example.com/api/v3",
		timeout: 15 * time.Second,
		headers: map[string]string{},
	}
}

// WithMerchantNo configures the merchant number.
func WithMerchantNo(no string) Option {
	return func(o *options) { o.merchantNo = no }
}

// WithTermNo sets the terminal number assigned to the cashier station.
func WithTermNo(no string) Option {
	return func(o *options) { o.termNo = no }
}

// WithSignKey sets the key used to sign request bodies.
func WithSignKey(key string) Option {
	return func(o *options) { o.signKey = key }
}

// WithBaseURL overrides the API base URL.
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
