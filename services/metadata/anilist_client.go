package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"popcorntracker/models"
)

const anilistBaseURL = "https://graphql.anilist.co"

const anilistMediaFields = `{
  id
  title {
    romaji
    english
    native
  }
  bannerImage
  averageScore
  coverImage {
    medium
    large
    color
  }
  season
  seasonYear
  description
  episodes
  chapters
  duration
  genres
}`

type anilistClient struct {
	url   string
	httpc *http.Client
}

func newAnilistClient(httpc *http.Client) *anilistClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &anilistClient{url: anilistBaseURL, httpc: httpc}
}

// MediaByIDs fetches several media in a single aliased GraphQL query,
// mirroring how the tracker refreshes its whole anime/manga list at once.
func (c *anilistClient) MediaByIDs(ctx context.Context, ids []int64) (map[int64]models.AnilistMedia, error) {
	if len(ids) == 0 {
		return map[int64]models.AnilistMedia{}, nil
	}

	var query strings.Builder
	query.WriteString("query {\n")
	for i, id := range ids {
		fmt.Fprintf(&query, "item%d: Media(id: %d, isAdult: false) %s\n", i, id, anilistMediaFields)
	}
	query.WriteString("}")

	var payload struct {
		Data map[string]*models.AnilistMedia `json:"data"`
	}
	if err := c.doQL(ctx, query.String(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("anilist returned no data")
	}

	out := make(map[int64]models.AnilistMedia, len(payload.Data))
	for _, media := range payload.Data {
		if media != nil && media.ID != 0 {
			out[media.ID] = *media
		}
	}
	return out, nil
}

// Search finds media by name. mediaType is ANIME or MANGA.
func (c *anilistClient) Search(ctx context.Context, name, mediaType string) ([]models.AnilistMedia, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required to search anilist")
	}

	query := fmt.Sprintf(`query {
  Page(page: 1, perPage: 20) {
    media(search: %q, type: %s, isAdult: false) %s
  }
}`, name, mediaType, anilistMediaFields)

	var payload struct {
		Data struct {
			Page struct {
				Media []models.AnilistMedia `json:"media"`
			} `json:"Page"`
		} `json:"data"`
	}
	if err := c.doQL(ctx, query, &payload); err != nil {
		return nil, err
	}
	return payload.Data.Page.Media, nil
}

func (c *anilistClient) doQL(ctx context.Context, query string, v any) error {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("anilist request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("anilist request failed: %s", resp.Status))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
