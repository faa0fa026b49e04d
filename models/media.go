package models

import (
	"bytes"
	"encoding/json"
)

// AnilistTitle holds the localized title variants Anilist returns.
type AnilistTitle struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

// AnilistCoverImage holds cover art URLs and the representative color.
type AnilistCoverImage struct {
	Medium string `json:"medium,omitempty"`
	Large  string `json:"large,omitempty"`
	Color  string `json:"color,omitempty"`
}

// AnilistMedia is the metadata shape returned by the Anilist GraphQL API for
// anime and manga entries.
type AnilistMedia struct {
	ID           int64             `json:"id"`
	Title        AnilistTitle      `json:"title"`
	Description  string            `json:"description,omitempty"`
	CoverImage   AnilistCoverImage `json:"coverImage"`
	BannerImage  string            `json:"bannerImage,omitempty"`
	Episodes     int               `json:"episodes,omitempty"`
	Duration     int               `json:"duration,omitempty"`
	Chapters     int               `json:"chapters,omitempty"`
	AverageScore int               `json:"averageScore,omitempty"`
	Genres       []string          `json:"genres,omitempty"`
	Season       string            `json:"season,omitempty"`
	SeasonYear   int               `json:"seasonYear,omitempty"`
}

// TmdbMedia is the metadata shape returned by TMDB for movies and series.
// Movies carry Title/OriginalTitle, series carry Name/OriginalName.
type TmdbMedia struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name,omitempty"`
	OriginalName     string  `json:"original_name,omitempty"`
	Title            string  `json:"title,omitempty"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	Overview         string  `json:"overview,omitempty"`
	PosterPath       string  `json:"poster_path,omitempty"`
	BackdropPath     string  `json:"backdrop_path,omitempty"`
	VoteAverage      float64 `json:"vote_average,omitempty"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	FirstAirDate     string  `json:"first_air_date,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	MediaType        string  `json:"media_type,omitempty"`
}

// Media is the resolved external metadata attached to an item. Exactly one
// of the two provider shapes is set. On the wire the inner shape is stored
// unwrapped; the provider is detected by shape (Anilist payloads always
// carry a coverImage object).
type Media struct {
	Anilist *AnilistMedia
	Tmdb    *TmdbMedia
}

func (m Media) MarshalJSON() ([]byte, error) {
	switch {
	case m.Anilist != nil:
		return json.Marshal(m.Anilist)
	case m.Tmdb != nil:
		return json.Marshal(m.Tmdb)
	default:
		return []byte("null"), nil
	}
}

func (m *Media) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		m.Anilist = nil
		m.Tmdb = nil
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if _, ok := probe["coverImage"]; ok {
		var a AnilistMedia
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		m.Anilist = &a
		m.Tmdb = nil
		return nil
	}

	var t TmdbMedia
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	m.Tmdb = &t
	m.Anilist = nil
	return nil
}

// DisplayTitle returns the preferred single title for the media.
func (m *Media) DisplayTitle() string {
	switch {
	case m == nil:
		return ""
	case m.Anilist != nil:
		t := m.Anilist.Title
		if t.Romaji != "" {
			return t.Romaji
		}
		if t.English != "" {
			return t.English
		}
		return t.Native
	case m.Tmdb != nil:
		if m.Tmdb.MediaType == "movie" {
			return m.Tmdb.Title
		}
		return m.Tmdb.Name
	default:
		return ""
	}
}

// Titles returns every known title variant, most specific first. Used by the
// episode-source match scorer.
func (m *Media) Titles() []string {
	if m == nil {
		return nil
	}
	var out []string

	appendNonEmpty := func(titles ...string) {
		for _, t := range titles {
			if t != "" {
				out = append(out, t)
			}
		}
	}

	if m.Anilist != nil {
		appendNonEmpty(m.Anilist.Title.English, m.Anilist.Title.Romaji, m.Anilist.Title.Native)
		return out
	}
	if m.Tmdb != nil {
		appendNonEmpty(m.Tmdb.Name, m.Tmdb.Title, m.Tmdb.OriginalName, m.Tmdb.OriginalTitle)
	}
	return out
}
