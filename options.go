package payflow

import (
	"log/slog"
	"net/http"

	"github.com/clinicore/payflow/bus"
	"github.com/clinicore/payflow/config"
	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/retry"
	"github.com/clinicore/payflow/session"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithChannelProvider manually registers a provider instance.
// Use this for custom provider configurations or testing. Resolution always
// returns the injected instance, regardless of WithoutInstanceCache.
func WithChannelProvider(name string, provider core.Provider) ClientOption {
	return func(c *Client) {
		c.injected[name] = provider
	}
}

// WithChannelSettings configures a registered channel explicitly, overriding
// the factory's environment-derived defaults. The channel is constructed
// lazily on first use.
func WithChannelSettings(name string, cfg ChannelConfig) ClientOption {
	return func(c *Client) {
		c.channelConfigs[name] = cfg
	}
}

// WithConfigSource injects the feature-flag source consulted for the
// aggregation gate. Defaults to a static source with aggregation disabled.
func WithConfigSource(src config.Source) ClientOption {
	return func(c *Client) { c.source = src }
}

// WithBus replaces the event bus shared by the client and its sessions.
func WithBus(b *bus.Bus) ClientOption {
	return func(c *Client) { c.bus = b }
}

// WithRetrier replaces the retrier used for all facade operations.
func WithRetrier(r *retry.Retrier) ClientOption {
	return func(c *Client) { c.retrier = r }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets the HTTP client handed to lazily constructed channels.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithSessionConfig overrides the timer defaults applied to sessions opened
// through Pay.
func WithSessionConfig(cfg session.Config) ClientOption {
	return func(c *Client) { c.sessionCfg = cfg }
}

// WithoutInstanceCache disables the per-channel provider cache; every
// resolution constructs a fresh instance from the factory. Providers injected
// with WithChannelProvider are unaffected.
func WithoutInstanceCache() ClientOption {
	return func(c *Client) { c.cacheDisabled = true }
}
