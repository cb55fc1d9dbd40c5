// Package catalog talks to the external video platform's content API.
// The core treats this data as read-only input.
package catalog

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

	"github.com/example/streamhub/services/progress/internal/series"
)

// ErrUnavailable marks any failure to reach or parse the catalog API.
var ErrUnavailable = errors.New("catalog unavailable")

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type episodeData struct {
	MediaID       string `json:"media_id"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

type episodeListResponse struct {
	Episodes []episodeData `json:"episodes"`
}

type categoryData struct {
	Slug     string   `json:"slug"`
	MediaIDs []string `json:"media_ids"`
}

type categoryListResponse struct {
	Categories []categoryData `json:"categories"`
}

// ListEpisodes fetches the ordered episode references for a series.
func (c *Client) ListEpisodes(ctx context.Context, seriesID string) ([]series.EpisodeRef, error) {
	if strings.TrimSpace(seriesID) == "" {
		return nil, fmt.Errorf("%w: series id required", ErrUnavailable)
	}

	var out episodeListResponse
	if err := c.getJSON(ctx, "/v2/series/"+url.PathEscape(seriesID)+"/episodes", &out); err != nil {
		return nil, err
	}

	refs := make([]series.EpisodeRef, 0, len(out.Episodes))
	for _, ep := range out.Episodes {
		if ep.MediaID == "" {
			continue
		}
		refs = append(refs, series.EpisodeRef{
			SeriesID: seriesID,
			MediaID:  ep.MediaID,
			Season:   ep.SeasonNumber,
			Episode:  ep.EpisodeNumber,
		})
	}
	return refs, nil
}

// ListCategories fetches the category playlists and flattens them into a
// media-id to category-slug mapping. Later playlists do not override earlier
// ones, matching how the platform lists a media item once per primary tag.
func (c *Client) ListCategories(ctx context.Context) (map[string]string, error) {
	var out categoryListResponse
	if err := c.getJSON(ctx, "/v2/categories", &out); err != nil {
		return nil, err
	}

	byMedia := make(map[string]string)
	for _, cat := range out.Categories {
		if cat.Slug == "" {
			continue
		}
		for _, id := range cat.MediaIDs {
			if _, seen := byMedia[id]; !seen {
				byMedia[id] = cat.Slug
			}
		}
	}
	return byMedia, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "streamhub-progress/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}
