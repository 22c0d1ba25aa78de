package payflow

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/clinicore/payflow/core"
)

// ChannelConfig holds configuration for initializing a payment channel.
type ChannelConfig struct {
	MerchantID string
	AppID      string
	SignKey    string
	BaseURL    string
	NotifyURL  string
	Headers    map[string]string
	HTTPClient *http.Client
}

// ChannelFactory creates channel provider instances from configuration.
type ChannelFactory interface {
	// New creates a new channel provider with the given configuration.
	New(config ChannelConfig) (core.Provider, error)

	// DefaultConfig returns default configuration, typically from environment variables.
	DefaultConfig() ChannelConfig
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ChannelFactory)
)

// RegisterChannel registers a channel factory. This is typically called from
// a channel package's init() function to enable self-registration on import.
//
// Example:
//
//	func init() {
//	    payflow.RegisterChannel("swiftpass", &Factory{})
//	}
//
// Panics if a channel with the same name is already registered.
func RegisterChannel(name string, factory ChannelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("payflow: channel %q already registered", name))
	}
	registry[name] = factory
}

// GetChannelFactory returns the factory for a registered channel.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// RegisteredChannels returns the names of all registered channels.
func RegisteredChannels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// IsChannelRegistered checks if a channel is registered.
func IsChannelRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
