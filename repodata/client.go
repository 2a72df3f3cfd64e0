// Package repodata fetches a conda channel's channeldata.json and
// per-subdir repodata.json, implementing §4.1 of the conda↔PyPI mapping
// pipeline.
package repodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/prefix-dev/conda-pypi-map"
	"github.com/prefix-dev/conda-pypi-map/internal/httputil"
)

// FetchTimeout is the default per-request timeout for repodata calls,
// per spec.md §5.
const FetchTimeout = 60 * time.Second

// Record is one package entry merged from a repodata.json's "packages"
// and "packages.conda" sections.
type Record struct {
	Filename string
	Name     string `json:"name"`
	Version  string `json:"version"`
	SHA256   string `json:"sha256"`
}

// Client fetches channeldata and repodata over HTTP, caching channeldata
// subdir-discovery results for the process lifetime since they rarely
// change within a run.
type Client struct {
	HTTP *http.Client

	// Token authenticates to token-gated labelled/private anaconda.org
	// channels, spliced into the URL as the documented "/t/<token>/"
	// path segment (per spec.md §6's ANACONDA_TOKEN external-interface
	// variable). Left empty, requests are unauthenticated.
	Token string

	mu          sync.Mutex
	subdirCache map[string][]condapypi.Subdir
}

// NewClient builds a Client using a pooled, retrying HTTP client if hc is
// nil, and ANACONDA_TOKEN from the environment for authenticating to
// token-gated anaconda.org channels.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = httputil.PooledClient()
	}
	return &Client{HTTP: hc, Token: os.Getenv("ANACONDA_TOKEN"), subdirCache: make(map[string][]condapypi.Subdir)}
}

type channeldata struct {
	Subdirs []string `json:"subdirs"`
}

// ListSubdirs returns channel's subdirs, from channeldata.json if the
// channel declares support for it, else the built-in default list. The
// channeldata result is cached for the lifetime of the Client.
func (c *Client) ListSubdirs(ctx context.Context, ch condapypi.Channel) ([]condapypi.Subdir, error) {
	log := zerolog.Ctx(ctx).With().Str("component", "repodata.Client.ListSubdirs").Str("channel", ch.Name).Logger()
	if !ch.HasChanneldata {
		return condapypi.DefaultSubdirs, nil
	}

	c.mu.Lock()
	if cached, ok := c.subdirCache[ch.Name]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	var lastErr error
	for _, base := range ch.BaseURLs {
		url := c.withToken(base) + "/channeldata.json"
		var cd channeldata
		if err := c.getJSON(ctx, url, &cd); err != nil {
			lastErr = err
			continue
		}
		subdirs := make([]condapypi.Subdir, len(cd.Subdirs))
		for i, s := range cd.Subdirs {
			subdirs[i] = condapypi.Subdir(s)
		}
		c.mu.Lock()
		c.subdirCache[ch.Name] = subdirs
		c.mu.Unlock()
		return subdirs, nil
	}
	log.Warn().Err(lastErr).Msg("channeldata.json unavailable, falling back to default subdirs")
	return condapypi.DefaultSubdirs, nil
}

// ListLabels discovers labels for channels that don't support
// channeldata (e.g. anaconda.org user channels), parsing the label index
// page's HTML when no structured endpoint is available.
func (c *Client) ListLabels(ctx context.Context, ch condapypi.Channel) ([]condapypi.Label, error) {
	if ch.HasChanneldata {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	var lastErr error
	for _, base := range ch.BaseURLs {
		labels, err := c.fetchLabelPage(ctx, c.withToken(base)+"/")
		if err != nil {
			lastErr = err
			continue
		}
		return labels, nil
	}
	return nil, fmt.Errorf("repodata: list labels for %s: %w", ch.Name, lastErr)
}

// fetchLabelPage walks an HTML index page for directory-style links,
// the same traversal shape a PyPA simple-repository client uses to walk
// file links, applied here to a channel's label listing.
func (c *Client) fetchLabelPage(ctx context.Context, url string) ([]condapypi.Label, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse(resp, http.StatusOK); err != nil {
		return nil, err
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("repodata: parsing label index: %w", err)
	}
	var labels []condapypi.Label
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.Trim(attr.Val, "/")
				if href == "" || strings.Contains(href, "/") {
					continue
				}
				labels = append(labels, condapypi.Label(href))
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return labels, nil
}

type repodataDoc struct {
	Packages      map[string]Record `json:"packages"`
	PackagesConda map[string]Record `json:"packages.conda"`
}

// FetchRepodata fetches repodata.json for (channel, subdir), optionally
// scoped to label, merging the legacy "packages" and new
// "packages.conda" sections. Records with a missing sha256 are dropped
// with a warning rather than failing the fetch.
func (c *Client) FetchRepodata(ctx context.Context, ch condapypi.Channel, subdir condapypi.Subdir, label *condapypi.Label) (map[string]Record, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "repodata.Client.FetchRepodata").
		Str("channel", ch.Name).
		Str("subdir", string(subdir)).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	var lastErr error
	for _, base := range ch.BaseURLs {
		url := c.repodataURL(base, ch.Name, subdir, label)
		var doc repodataDoc
		err := c.getJSON(ctx, url, &doc)
		switch {
		case err == nil:
			return mergeRecords(doc, log), nil
		case isMissing(err):
			log.Warn().Str("url", url).Msg("repodata not found, skipping subdir")
			return map[string]Record{}, nil
		default:
			lastErr = err
		}
	}
	return nil, fmt.Errorf("repodata: fetch %s/%s: %w", ch.Name, subdir, lastErr)
}

func mergeRecords(doc repodataDoc, log zerolog.Logger) map[string]Record {
	out := make(map[string]Record, len(doc.Packages)+len(doc.PackagesConda))
	merge := func(m map[string]Record) {
		for filename, rec := range m {
			if rec.SHA256 == "" {
				log.Warn().Str("filename", filename).Msg("repodata record missing sha256, skipping")
				continue
			}
			rec.Filename = filename
			out[filename] = rec
		}
	}
	merge(doc.Packages)
	merge(doc.PackagesConda)
	return out
}

func (c *Client) repodataURL(base, channel string, subdir condapypi.Subdir, label *condapypi.Label) string {
	base = c.withToken(base)
	if label != nil {
		return fmt.Sprintf("%s/%s/label/%s/%s/repodata.json", base, channel, *label, subdir)
	}
	return fmt.Sprintf("%s/%s/repodata.json", base, subdir)
}

// withToken splices Token into base as anaconda.org's documented
// "/t/<token>/" path segment, for the token-gated labelled/private
// channels the anaconda.org API serves this way. Self-hosted mirror
// hosts are left untouched since they don't speak this convention.
func (c *Client) withToken(base string) string {
	base = strings.TrimRight(base, "/")
	if c.Token == "" || !strings.Contains(base, "anaconda.org") {
		return base
	}
	idx := strings.Index(base, "anaconda.org")
	host := base[:idx+len("anaconda.org")]
	rest := strings.TrimPrefix(base[idx+len("anaconda.org"):], "/")
	if rest == "" {
		return fmt.Sprintf("%s/t/%s", host, c.Token)
	}
	return fmt.Sprintf("%s/t/%s/%s", host, c.Token, rest)
}

type httpStatusError struct {
	status int
	url    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.status, e.url)
}

func isMissing(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, url: url}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
