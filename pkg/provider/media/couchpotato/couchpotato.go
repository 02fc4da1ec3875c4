// Package couchpotato provides a CouchPotato-backed media provider. It talks
// to the CouchPotato server's JSON API, which authenticates by embedding the
// API key in the URL path (/api/<key>/<command>). It implements the
// media.Provider and media.Pinger interfaces for [media.ProviderMovies].
//
// Typical usage:
//
//	p, err := couchpotato.New("http://localhost:5050", apiKey,
//	    couchpotato.WithTimeout(5*time.Second),
//	)
//	results, err := p.Search(ctx, "the godfather")
package couchpotato

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Compile-time interface assertions.
var (
	_ media.Provider = (*Provider)(nil)
	_ media.Pinger   = (*Provider)(nil)
)

const (
	defaultTimeout = 10 * time.Second

	availableCommand = "app.available"
	searchCommand    = "movie.search"
	listCommand      = "media.list"
	addCommand       = "movie.add"

	// listStatuses restricts media.list to movies the user still tracks:
	// wanted ("active") and already snatched or downloaded ("done").
	listStatuses = "active,done"

	// maxErrorBody caps how much of an error response body is echoed into
	// error messages.
	maxErrorBody = 512
)

// Option is a functional option for configuring a CouchPotato [Provider].
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements media.Provider backed by a CouchPotato server.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the CouchPotato server at baseURL
// (e.g., "http://localhost:5050"). Both baseURL and apiKey must be non-empty.
func New(baseURL, apiKey string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("couchpotato: baseURL must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("couchpotato: apiKey must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("couchpotato: parse baseURL: %w", err)
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

// envelope is the field every CouchPotato API response carries.
type envelope struct {
	Success bool `json:"success"`
}

// searchMovie is one entry of the movie.search response.
type searchMovie struct {
	OriginalTitle string   `json:"original_title"`
	Titles        []string `json:"titles"`
	Year          int      `json:"year"`
	IMDB          string   `json:"imdb"`
	InLibrary     any      `json:"in_library"`
	InWanted      any      `json:"in_wanted"`
}

type searchResponse struct {
	envelope
	Movies []searchMovie `json:"movies"`
}

// listMovie is one entry of the media.list response.
type listMovie struct {
	Status      string            `json:"status"`
	Title       string            `json:"title"`
	Identifiers map[string]string `json:"identifiers"`
	Info        struct {
		Titles []string `json:"titles"`
		Year   int      `json:"year"`
		IMDB   string   `json:"imdb"`
	} `json:"info"`
}

type listResponse struct {
	envelope
	Movies []listMovie `json:"movies"`
	Total  int         `json:"total"`
}

// ---- media.Provider ----

// Search queries the CouchPotato catalogue (backed by TheMovieDB/IMDb
// searchers) for movies matching query.
func (p *Provider) Search(ctx context.Context, query string) ([]media.Media, error) {
	var resp searchResponse
	if err := p.call(ctx, searchCommand, url.Values{"q": {query}}, &resp); err != nil {
		return nil, err
	}

	out := make([]media.Media, 0, len(resp.Movies))
	for _, m := range resp.Movies {
		title := m.OriginalTitle
		if len(m.Titles) > 0 {
			title = m.Titles[0]
		}
		if title == "" {
			continue
		}
		out = append(out, media.Media{Title: title, Year: m.Year, IMDB: m.IMDB})
	}
	return out, nil
}

// Find lists the movies on the CouchPotato wanted/done list whose titles match
// query.
func (p *Provider) Find(ctx context.Context, query string) ([]media.Media, error) {
	params := url.Values{
		"type":   {"movie"},
		"status": {listStatuses},
		"search": {query},
	}
	var resp listResponse
	if err := p.call(ctx, listCommand, params, &resp); err != nil {
		return nil, err
	}

	out := make([]media.Media, 0, len(resp.Movies))
	for _, m := range resp.Movies {
		title := m.Title
		if len(m.Info.Titles) > 0 {
			title = m.Info.Titles[0]
		}
		imdb := m.Info.IMDB
		if imdb == "" {
			imdb = m.Identifiers["imdb"]
		}
		out = append(out, media.Media{Title: title, Year: m.Info.Year, IMDB: imdb, Status: m.Status})
	}
	return out, nil
}

// Add adds every item to the CouchPotato wanted list, one request per item.
// It stops at the first failure; items before it stay added.
func (p *Provider) Add(ctx context.Context, items []media.Media) error {
	for _, item := range items {
		if item.IMDB == "" {
			return fmt.Errorf("couchpotato: add %q: missing imdb identifier", item.Title)
		}
		params := url.Values{
			"identifier": {item.IMDB},
			"title":      {item.Title},
		}
		var resp envelope
		if err := p.call(ctx, addCommand, params, &resp); err != nil {
			return fmt.Errorf("couchpotato: add %q: %w", item.Title, err)
		}
	}
	return nil
}

// Ping checks that the server is reachable and accepts the API key.
func (p *Provider) Ping(ctx context.Context) error {
	var resp envelope
	return p.call(ctx, availableCommand, nil, &resp)
}

// ---- transport ----

// call issues GET /api/<key>/<command>?<params> and decodes the JSON body into
// out. out must embed envelope so the success flag can be checked.
func (p *Provider) call(ctx context.Context, command string, params url.Values, out interface{ ok() bool }) error {
	reqURL := p.baseURL + "/api/" + url.PathEscape(p.apiKey) + "/" + command
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("couchpotato: create %s request: %w", command, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// The URL contains the API key; report the command only.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("couchpotato: GET %s: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("couchpotato: GET %s returned status %d: %s", command, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("couchpotato: decode %s response: %w", command, err)
	}
	if !out.ok() {
		return fmt.Errorf("couchpotato: %s reported failure", command)
	}
	return nil
}

func (e *envelope) ok() bool { return e.Success }
