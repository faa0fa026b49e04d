package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"popcorntracker/utils/match"
)

const jikanBaseURL = "https://api.jikan.moe/v4"

// JikanAnime is one search result from the MyAnimeList mirror API.
type JikanAnime struct {
	MalID         int64    `json:"mal_id"`
	Title         string   `json:"title"`
	TitleEnglish  string   `json:"title_english"`
	TitleJapanese string   `json:"title_japanese"`
	Titles        []struct {
		Type  string `json:"type"`
		Title string `json:"title"`
	} `json:"titles"`
	TitleSynonyms []string `json:"title_synonyms"`
	Type          string   `json:"type"`
	Episodes      int      `json:"episodes"`
	Year          int      `json:"year"`
	Duration      string   `json:"duration"`
}

// JikanEpisode is one catalog episode.
type JikanEpisode struct {
	MalID         int64  `json:"mal_id"`
	Title         string `json:"title"`
	TitleJapanese string `json:"title_japanese"`
	TitleRomanji  string `json:"title_romanji"`
	Aired         string `json:"aired"`
	Filler        bool   `json:"filler"`
	Recap         bool   `json:"recap"`
}

// JikanEpisodesPage is one page of an anime's episode list.
type JikanEpisodesPage struct {
	Data       []JikanEpisode `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"pagination"`
}

type jikanClient struct {
	baseURL string
	httpc   *http.Client

	// Jikan enforces a strict rate limit; space requests out.
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newJikanClient(httpc *http.Client) *jikanClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &jikanClient{baseURL: jikanBaseURL, httpc: httpc, minInterval: 350 * time.Millisecond}
}

// SearchAnime queries the catalog by title.
func (c *jikanClient) SearchAnime(ctx context.Context, title string) ([]JikanAnime, error) {
	query := url.Values{}
	query.Set("q", title)
	query.Set("limit", "10")

	var payload struct {
		Data []JikanAnime `json:"data"`
	}
	if err := c.doGET(ctx, c.baseURL+"/anime?"+query.Encode(), &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Episodes fetches one page of an anime's episode list.
func (c *jikanClient) Episodes(ctx context.Context, malID int64, page int) (JikanEpisodesPage, error) {
	if page < 1 {
		page = 1
	}
	endpoint := fmt.Sprintf("%s/anime/%d/episodes?page=%d", c.baseURL, malID, page)

	var payload JikanEpisodesPage
	if err := c.doGET(ctx, endpoint, &payload); err != nil {
		return JikanEpisodesPage{}, err
	}
	return payload, nil
}

func (c *jikanClient) doGET(ctx context.Context, endpoint string, v any) error {
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
				return fmt.Errorf("jikan request failed: %s", resp.Status)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("jikan request failed: %s", resp.Status))
			}
			return json.NewDecoder(resp.Body).Decode(v)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(350*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// candidate converts a search result into the scorer's shape, pooling every
// title variant the catalog knows.
func (a JikanAnime) candidate() match.Candidate {
	titles := []string{a.Title, a.TitleEnglish, a.TitleJapanese}
	for _, t := range a.Titles {
		titles = append(titles, t.Title)
	}
	titles = append(titles, a.TitleSynonyms...)

	return match.Candidate{
		ID:       a.MalID,
		Titles:   titles,
		Year:     a.Year,
		Episodes: a.Episodes,
	}
}

var (
	hourPattern = regexp.MustCompile(`(\d+)\s*hr`)
	minPattern  = regexp.MustCompile(`(\d+)\s*min`)
)

// parseDurationSeconds converts catalog duration strings like
// "24 min per ep" or "1 hr 30 min" to seconds. Returns 0 when unparseable.
func parseDurationSeconds(duration string) int {
	total := 0
	if m := hourPattern.FindStringSubmatch(duration); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			total += v * 3600
		}
	}
	if m := minPattern.FindStringSubmatch(duration); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			total += v * 60
		}
	}
	return total
}
