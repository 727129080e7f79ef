// Package disk resolves publicly shared Yandex Disk links.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ec "github.com/evoronina/konspekt/pkgs/errors"
)

// AllowedDomains lists the share-link hosts accepted by intake. Anything
// else is rejected before any API call is made.
var AllowedDomains = []string{
	"yadi.sk",
	"disk.yandex.ru",
	"disk.360.yandex.ru",
	"disk.yandex.com",
	"disk.360.yandex.com",
	"disk.yandex.by",
	"disk.360.yandex.by",
	"disk.yandex.kz",
	"disk.360.yandex.kz",
}

const (
	publicResourcesPath = "/v1/disk/public/resources"
	downloadPath        = "/v1/disk/public/resources/download"
)

// Client talks to the Disk public resources REST API.
type Client struct {
	baseURL string
	httpCli *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{Timeout: timeout},
	}
}

// AllowedURL reports whether the link is an https URL on a known share
// domain. This check is local; no network call is made.
func AllowedURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "https" {
		return false
	}
	for _, domain := range AllowedDomains {
		if parsed.Host == domain || strings.HasSuffix(parsed.Host, "."+domain) {
			return true
		}
	}
	return false
}

type publicResource struct {
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
}

// IsPublicVideo reports whether the link points to a publicly shared video
// file. False requires a definitive answer from the API (a 4xx, or metadata
// describing something other than a video file); transport failures and 5xx
// come back as transient errors so the caller can retry instead of
// rejecting a link the API never actually judged.
func (c *Client) IsPublicVideo(ctx context.Context, publicURL string) (bool, error) {
	if !AllowedURL(publicURL) {
		return false, nil
	}

	resp, err := c.get(ctx, publicResourcesPath, publicURL)
	if err != nil {
		return false, ec.ErrTransientExternal.Clone().
			WithDetails("disk metadata api unreachable").
			Warp(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, nil
	default:
		return false, ec.ErrTransientExternal.Clone().
			WithDetails(fmt.Sprintf("disk metadata api returned %d", resp.StatusCode))
	}

	var res publicResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, ec.ErrPermanentExternal.Clone().
			WithDetails("disk metadata api returned malformed response").
			Warp(err)
	}
	return res.Type == "file" && strings.HasPrefix(res.MimeType, "video/"), nil
}

// ResolveDownloadURL exchanges a public share link for a direct download href.
func (c *Client) ResolveDownloadURL(ctx context.Context, publicURL string) (string, error) {
	resp, err := c.get(ctx, downloadPath, publicURL)
	if err != nil {
		return "", ec.ErrTransientExternal.Clone().
			WithDetails("disk download api unreachable").
			Warp(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails(fmt.Sprintf("disk download api returned %d", resp.StatusCode))
	default:
		return "", ec.ErrTransientExternal.Clone().
			WithDetails(fmt.Sprintf("disk download api returned %d", resp.StatusCode))
	}

	var body struct {
		Href string `json:"href"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("disk download api returned malformed response").
			Warp(err)
	}
	if body.Href == "" {
		return "", ec.ErrPermanentExternal.Clone().
			WithDetails("disk download api returned no href")
	}
	return body.Href, nil
}

func (c *Client) get(ctx context.Context, path, publicURL string) (*http.Response, error) {
	q := url.Values{}
	q.Set("public_key", publicURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.httpCli.Do(req)
}
