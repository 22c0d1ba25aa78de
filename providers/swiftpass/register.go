package swiftpass

import (
	"os"

	"github.com/clinicore/payflow"
	"github.com/clinicore/payflow/core"
)

func init() {
	payflow.RegisterChannel("swiftpass", &Factory{})
}

// Factory creates SwiftPass provider instances.
type Factory struct{}

// New creates a new SwiftPass provider with the given configuration.
func (f *Factory) New(config payflow.ChannelConfig) (core.Provider, error) {
	var opts []Option

	if config.MerchantID != "" {
		opts = append(opts, WithMerchantID(config.MerchantID))
	}
	if config.AppID != "" {
		opts = append(opts, WithAppID(config.AppID))
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
		MerchantID: os.Getenv("SWIFTPASS_MCH_ID"),
		AppID:      os.Getenv("SWIFTPASS_APP_ID"),
		SignKey:    os.Getenv("SWIFTPASS_SIGN_KEY"),
		BaseURL:    os.Getenv("SWIFTPASS_BASE_URL"),
		NotifyURL:  os.Getenv("SWIFTPASS_NOTIFY_URL"),
	}
}
