package lakala

import (
	"os"

	"github.com/clinicore/payflow"
	"github.com/clinicore/payflow/core"
)

func init() {
	payflow.RegisterChannel("lakala", &Factory{})
}

// Factory creates Lakala provider instances.
type Factory struct{}

// New creates a new Lakala provider with the given configuration.
func (f *Factory) New(config payflow.ChannelConfig) (core.Provider, error) {
	var opts []Option

	if config.MerchantID != "" {
		opts = append(opts, WithMerchantNo(config.MerchantID))
	}
	if config.AppID != "" {
		opts = append(opts, WithTermNo(config.AppID))
	}
	if config.SignKey != "" {
		opts = append(opts, WithSignKey(config.SignKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, WithBaseURL(config.BaseURL))
	}
	if config.NotifyURL != "" {
		opts = append(opts, WithNotifyURL(config.NotifyURL))
	}
	if config.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(config.HTTPClient))
	}
	for k, v := range config.Headers {
		opts = append(opts, WithHeader(k, v))
	}

	return New(opts...), nil
}

// DefaultConfig returns default configuration from environment variables.
func (f *Factory) DefaultConfig() payflow.ChannelConfig {
	return payflow.ChannelConfig{
		MerchantID: os.Getenv("LAKALA_MERCHANT_NO"),
		AppID:      os.Getenv("LAKALA_TERM_NO"),
		SignKey:    os.Getenv("LAKALA_SIGN_KEY"),
		BaseURL:    os.Getenv("LAKALA_BASE_URL"),
		NotifyURL:  os.Getenv("LAKALA_NOTIFY_URL"),
	}
}
