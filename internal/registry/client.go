package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomnomnom/linkheader"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// maxPages stops a pagination walk that never terminates.
const maxPages = 10000

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to one or more registry Query APIs.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	http     *nmos.Client
	logger   Logger
	maxPages int
}

// NewClient creates a registry client on top of hc. A nil hc uses
// nmos.NewClient() defaults.
func NewClient(hc *nmos.Client) *Client {
	if hc == nil {
		hc = nmos.NewClient()
	}
	return &Client{
		http:     hc,
		logger:   noopLogger{},
		maxPages: maxPages,
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// CollectionURL joins a Query API base and a collection path.
func CollectionURL(base string, col resource.Collection) string {
	return strings.TrimRight(base, "/") + col.Path()
}

// FetchCollection reads one whole collection from a Query API base.
func (c *Client) FetchCollection(ctx context.Context, base string, col resource.Collection) ([]resource.Resource, error) {
	return c.FetchAll(ctx, CollectionURL(base, col))
}

// FetchAll returns every record of the collection at rawURL, following
// server-side pagination.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rawURL: Absolute collection URL, e.g. http://reg/x-nmos/query/v1.3/senders
//
// Returns:
//   - []resource.Resource: All records, oldest page first (never nil on success)
//   - error: The first failure, wrapped with the URL that failed, or
//     nmos.ErrProtocol when the walk exceeds the page limit
func (c *Client) FetchAll(ctx context.Context, rawURL string) ([]resource.Resource, error) {
	first, links, err := c.fetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	last, ok := links.rel("last")
	if !ok {
		return orEmpty(first), nil
	}

	var (
		result  []resource.Resource
		visited = map[string]bool{}
		cur     = last
	)
	for {
		if visited[cur] {
			c.logger.Warn("pagination cycle detected", "url", cur)
			break
		}
		if len(visited) >= c.maxPages {
			return nil, fmt.Errorf("%w: %s exceeds %d pages", nmos.ErrProtocol, rawURL, c.maxPages)
		}
		visited[cur] = true

		page, pageLinks, err := c.fetchPage(ctx, cur)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		result = append(page, result...)

		prev, ok := pageLinks.rel("prev")
		if !ok {
			break
		}
		cur = prev
	}

	c.logger.Debug("collection fetched", "url", rawURL, "count", len(result), "pages", len(visited))
	return orEmpty(result), nil
}

// fetchPage GETs one page and resolves its Link header against the page URL.
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]resource.Resource, pageLinks, error) {
	var page []resource.Resource
	resp, err := c.http.GetJSON(ctx, pageURL, &page)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	return page, parseLinks(pageURL, resp.Header), nil
}

// pageLinks maps a rel to its absolute target.
type pageLinks map[string]string

func (p pageLinks) rel(name string) (string, bool) {
	u, ok := p[name]
	return u, ok && u != ""
}

// parseLinks reads RFC 5988 Link headers. Unparseable targets are dropped,
// which ends the walk.
func parseLinks(base string, h http.Header) pageLinks {
	out := pageLinks{}
	values := h.Values("Link")
	if len(values) == 0 {
		return out
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return out
	}
	for _, l := range linkheader.ParseMultiple(values) {
		target, err := url.Parse(strings.TrimSpace(l.URL))
		if err != nil || l.URL == "" {
			continue
		}
		abs := baseURL.ResolveReference(target)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		for _, rel := range strings.Fields(strings.ToLower(l.Rel)) {
			if _, seen := out[rel]; !seen {
				out[rel] = abs.String()
			}
		}
	}
	return out
}

func orEmpty(list []resource.Resource) []resource.Resource {
	if list == nil {
		return []resource.Resource{}
	}
	return list
}

// IsFetchError reports whether err came from a registry request rather
// than from decoding.
func IsFetchError(err error) bool {
	return errors.Is(err, nmos.ErrUpstream) || errors.Is(err, nmos.ErrNetwork)
}
