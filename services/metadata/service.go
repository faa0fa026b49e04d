// Package metadata refreshes item media from the external providers
// (Anilist for anime/manga, TMDB for movies/series) and resolves episode
// catalogs through the Jikan mirror of MyAnimeList.
package metadata

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"popcorntracker/models"
	"popcorntracker/utils/match"
)

const refreshMaxWorkers = 4

// RefreshFailure is one item-level failure collected during a batch refresh.
// Failures never block the rest of the batch.
type RefreshFailure struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

// EpisodeSource identifies the external episode catalog entry matched to a
// media record.
type EpisodeSource struct {
	MalID              int64 `json:"malId"`
	EpisodeDurationSec int   `json:"episodeDurationSec"`
}

// Service bundles the provider clients.
type Service struct {
	anilist *anilistClient
	tmdb    *tmdbClient
	jikan   *jikanClient
}

// NewService creates the metadata service. The TMDB key may be empty, in
// which case movie/series refreshes fail per item rather than globally.
func NewService(tmdbAPIKey, language string, httpc *http.Client) *Service {
	return &Service{
		anilist: newAnilistClient(httpc),
		tmdb:    newTMDBClient(tmdbAPIKey, language, httpc),
		jikan:   newJikanClient(httpc),
	}
}

// RefreshItems re-fetches media for every item that has resolved media.
// The successful subset is always returned ready to apply; failures are
// collected separately for the caller to journal or display. Items without
// media pass through untouched.
func (s *Service) RefreshItems(ctx context.Context, items []models.Item) ([]models.Item, []RefreshFailure) {
	updated := make([]models.Item, len(items))
	copy(updated, items)

	var (
		mu       sync.Mutex
		failures []RefreshFailure
	)
	fail := func(itemID string, err error) {
		mu.Lock()
		failures = append(failures, RefreshFailure{ItemID: itemID, Error: err.Error()})
		mu.Unlock()
	}

	now := time.Now().UnixMilli()

	// Anilist supports fetching the whole list in one aliased query.
	var anilistIdx []int
	var anilistIDs []int64
	for i, item := range updated {
		if item.Media != nil && item.Media.Anilist != nil {
			anilistIdx = append(anilistIdx, i)
			anilistIDs = append(anilistIDs, item.Media.Anilist.ID)
		}
	}
	if len(anilistIDs) > 0 {
		medias, err := s.anilist.MediaByIDs(ctx, anilistIDs)
		if err != nil {
			log.Printf("[metadata] anilist batch refresh failed: %v", err)
			for _, i := range anilistIdx {
				fail(updated[i].ID, err)
			}
		} else {
			for _, i := range anilistIdx {
				if media, ok := medias[updated[i].Media.Anilist.ID]; ok {
					updated[i].Media = &models.Media{Anilist: &media}
					stamp := now
					updated[i].LastUpdated = &stamp
				}
			}
		}
	}

	// TMDB has no batch endpoint; fan out with a bounded pool.
	p := pool.New().WithMaxGoroutines(refreshMaxWorkers)
	for i := range updated {
		if updated[i].Media == nil || updated[i].Media.Tmdb == nil {
			continue
		}
		i := i
		p.Go(func() {
			prev := updated[i].Media.Tmdb
			media, err := s.tmdb.MediaByID(ctx, prev.ID, prev.MediaType)
			if err != nil {
				fail(updated[i].ID, err)
				return
			}
			mu.Lock()
			updated[i].Media = &models.Media{Tmdb: media}
			stamp := now
			updated[i].LastUpdated = &stamp
			mu.Unlock()
		})
	}
	p.Wait()

	return updated, failures
}

// SearchMedia finds provider candidates for attaching media to an item.
// Anime and manga go to Anilist, movies and series to TMDB.
func (s *Service) SearchMedia(ctx context.Context, category models.Category, name string) ([]models.Media, error) {
	switch category {
	case models.CategoryAnime, models.CategoryManga:
		mediaType := "ANIME"
		if category == models.CategoryManga {
			mediaType = "MANGA"
		}
		results, err := s.anilist.Search(ctx, name, mediaType)
		if err != nil {
			return nil, err
		}
		out := make([]models.Media, 0, len(results))
		for i := range results {
			out = append(out, models.Media{Anilist: &results[i]})
		}
		return out, nil
	case models.CategoryMovie, models.CategorySerie:
		mediaType := "movie"
		if category == models.CategorySerie {
			mediaType = "tv"
		}
		results, err := s.tmdb.Search(ctx, name, mediaType)
		if err != nil {
			return nil, err
		}
		out := make([]models.Media, 0, len(results))
		for i := range results {
			out = append(out, models.Media{Tmdb: &results[i]})
		}
		return out, nil
	default:
		return nil, models.ErrInvalidCategory
	}
}

// FindEpisodeSource matches an Anilist media record against the Jikan
// catalog, trying title variants (english, romaji, native) in order.
func (s *Service) FindEpisodeSource(ctx context.Context, media *models.AnilistMedia) (EpisodeSource, bool, error) {
	if media == nil {
		return EpisodeSource{}, false, nil
	}

	byID := make(map[int64]JikanAnime)
	search := func(title string) ([]match.Candidate, error) {
		results, err := s.jikan.SearchAnime(ctx, title)
		if err != nil {
			return nil, err
		}
		cands := make([]match.Candidate, 0, len(results))
		for _, r := range results {
			byID[r.MalID] = r
			cands = append(cands, r.candidate())
		}
		return cands, nil
	}

	canon := match.Canonical{
		Titles:   []string{media.Title.English, media.Title.Romaji, media.Title.Native},
		Year:     media.SeasonYear,
		Episodes: media.Episodes,
	}

	best, ok, err := match.FindMatch(canon, search)
	if err != nil || !ok {
		return EpisodeSource{}, false, err
	}

	return EpisodeSource{
		MalID:              best.ID,
		EpisodeDurationSec: parseDurationSeconds(byID[best.ID].Duration),
	}, true, nil
}

// Episodes pages through the matched catalog entry's episode list.
func (s *Service) Episodes(ctx context.Context, malID int64, page int) (JikanEpisodesPage, error) {
	return s.jikan.Episodes(ctx, malID, page)
}
