package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/internal/httpclient"
)

// Default switch keys.
const (
	DefaultChannelKey = "payment.aggregation.channel"
	DefaultEnabledKey = "payment.aggregation.enabled"
)

// SwitchService reads the orchestration switches from a remote key-value
// switch service. Each value may arrive as a scalar or as a single-entry
// object whose first value is the payload.
type SwitchService struct {
	baseURL    string
	channelKey string
	enabledKey string
	http       *http.Client
}

// SwitchOption configures a SwitchService.
type SwitchOption func(*SwitchService)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SwitchOption {
	return func(s *SwitchService) { s.http = client }
}

// WithKeys overrides the switch keys queried for channel and enable flag.
func WithKeys(channelKey, enabledKey string) SwitchOption {
	return func(s *SwitchService) {
		s.channelKey = channelKey
		s.enabledKey = enabledKey
	}
}

// NewSwitchService creates a client for the switch service at baseURL.
func NewSwitchService(baseURL string, opts ...SwitchOption) *SwitchService {
	s := &SwitchService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		channelKey: DefaultChannelKey,
		enabledKey: DefaultEnabledKey,
		http:       httpclient.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements Source. Unavailability of the service yields an error for
// the facade's fallback chain, never a panic.
func (s *SwitchService) Load(ctx context.Context) (Settings, error) {
	endpoint := fmt.Sprintf("%s/api/v1/switches?keys=%s", s.baseURL,
		url.QueryEscape(s.channelKey+","+s.enabledKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Settings{}, core.NewError(core.ErrConfig, "build switch request", core.WithWrapped(err))
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Settings{}, core.NewError(core.ErrNetwork, "switch service unreachable", core.WithWrapped(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Settings{}, core.NewError(core.ErrConfig, "switch service error",
			core.WithStatus(resp.StatusCode))
	}

	var values map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return Settings{}, core.NewError(core.ErrConfig, "decode switch response", core.WithWrapped(err))
	}

	channel, err := scalarValue(values[s.channelKey])
	if err != nil {
		return Settings{}, core.NewError(core.ErrConfig, "switch "+s.channelKey, core.WithWrapped(err))
	}
	enabledRaw, err := scalarValue(values[s.enabledKey])
	if err != nil {
		return Settings{}, core.NewError(core.ErrConfig, "switch "+s.enabledKey, core.WithWrapped(err))
	}

	return Settings{Channel: channel, Enabled: parseBool(enabledRaw)}, nil
}

// scalarValue extracts the useful payload from a switch value: a scalar is
// returned as-is, an object yields its first value (by key order, so the
// result is stable for the single-entry objects the service emits).
func scalarValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("switch value absent")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) > 0 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return scalarValue(obj[keys[0]])
	}

	return "", fmt.Errorf("switch value has unsupported shape: %s", string(raw))
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes", "enabled":
		return true
	}
	return false
}
