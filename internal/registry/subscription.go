package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
)

// SubscriptionRequest is the body POSTed to <query>/subscriptions.
type SubscriptionRequest struct {
	MaxUpdateRateMS int            `json:"max_update_rate_ms"`
	ResourcePath    string         `json:"resource_path"`
	Persist         bool           `json:"persist"`
	Params          map[string]any `json:"params"`
}

// Subscription is the registry's answer to a SubscriptionRequest.
type Subscription struct {
	ID              string         `json:"id"`
	WSHref          string         `json:"ws_href"`
	MaxUpdateRateMS int            `json:"max_update_rate_ms"`
	Persist         bool           `json:"persist"`
	Secure          bool           `json:"secure"`
	ResourcePath    string         `json:"resource_path"`
	Params          map[string]any `json:"params"`
}

// WebSocketURL returns WSHref with an http(s) scheme rewritten to ws(s).
// Some registries advertise the push channel with the HTTP scheme.
func (s *Subscription) WebSocketURL() (string, error) {
	u, err := url.Parse(s.WSHref)
	if err != nil {
		return "", fmt.Errorf("%w: ws_href %q: %w", nmos.ErrProtocol, s.WSHref, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: ws_href %q has unsupported scheme", nmos.ErrProtocol, s.WSHref)
	}
	return u.String(), nil
}

// CreateSubscription asks the registry at queryBase for a push channel.
//
// Parameters:
//   - ctx: Context for cancellation
//   - queryBase: Query API base URL
//   - req: Subscription parameters; nil Params is sent as {}
//
// Returns:
//   - *Subscription: Registry response with a non-empty WSHref
//   - error: Classified nmos error, or ErrProtocol when ws_href is missing
func (c *Client) CreateSubscription(ctx context.Context, queryBase string, req SubscriptionRequest) (*Subscription, error) {
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	target := strings.TrimRight(queryBase, "/") + "/subscriptions"

	var sub Subscription
	if _, err := c.http.SendJSON(ctx, http.MethodPost, target, req, &sub); err != nil {
		return nil, fmt.Errorf("creating subscription for %s: %w", req.ResourcePath, err)
	}
	if sub.WSHref == "" {
		return nil, fmt.Errorf("%w: subscription for %s has no ws_href", nmos.ErrProtocol, req.ResourcePath)
	}

	c.logger.Debug("subscription created",
		"resource_path", req.ResourcePath,
		"subscription_id", sub.ID,
		"ws_href", sub.WSHref,
	)
	return &sub, nil
}
