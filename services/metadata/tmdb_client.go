package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"popcorntracker/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

type tmdbClient struct {
	apiKey   string
	language string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    language,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// MediaByID fetches a movie or tv detail record. mediaType is the TMDB
// media_type value ("movie" or "tv").
func (c *tmdbClient) MediaByID(ctx context.Context, id int64, mediaType string) (*models.TmdbMedia, error) {
	if !c.isConfigured() {
		return nil, fmt.Errorf("tmdb api key not configured")
	}
	if mediaType != "movie" && mediaType != "tv" {
		return nil, fmt.Errorf("unsupported tmdb media type %q", mediaType)
	}

	query := url.Values{}
	query.Set("api_key", c.apiKey)
	if c.language != "" {
		query.Set("language", c.language)
	}
	endpoint := fmt.Sprintf("%s/%s/%d?%s", tmdbBaseURL, mediaType, id, query.Encode())

	var media models.TmdbMedia
	if err := c.doGET(ctx, endpoint, &media); err != nil {
		return nil, err
	}
	// Detail responses omit media_type; keep it so shape detection and the
	// next refresh keep working.
	media.MediaType = mediaType
	return &media, nil
}

// Search queries the movie or tv catalog by name.
func (c *tmdbClient) Search(ctx context.Context, name, mediaType string) ([]models.TmdbMedia, error) {
	if !c.isConfigured() {
		return nil, fmt.Errorf("tmdb api key not configured")
	}
	if mediaType != "movie" && mediaType != "tv" {
		return nil, fmt.Errorf("unsupported tmdb media type %q", mediaType)
	}

	query := url.Values{}
	query.Set("api_key", c.apiKey)
	query.Set("query", name)
	if c.language != "" {
		query.Set("language", c.language)
	}
	endpoint := fmt.Sprintf("%s/search/%s?%s", tmdbBaseURL, mediaType, query.Encode())

	var payload struct {
		Results []models.TmdbMedia `json:"results"`
	}
	if err := c.doGET(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	// Search results omit media_type as well.
	for i := range payload.Results {
		payload.Results[i].MediaType = mediaType
	}
	return payload.Results, nil
}

// doGET performs an HTTP GET with rate limiting and bounded retry.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, v any) error {
	return retry.Do(
		func() error {
			c.throttleMu.Lock()
			since := time.Since(c.lastRequest)
			if since < c.minInterval {
				time.Sleep(c.minInterval - since)
			}
			c.lastRequest = time.Now()
			c.throttleMu.Unlock()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("tmdb request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("tmdb request failed: %s", resp.Status))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
