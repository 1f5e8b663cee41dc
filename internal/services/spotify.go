// Spotify Web API client built on a [Caller].
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/soundcheck/internal/shared"
)

// DefaultSpotifyAPIURL is the production Web API base.
const DefaultSpotifyAPIURL = "https://api.spotify.com/v1"

// Time ranges accepted by the top items endpoint.
const (
	ShortTerm  = "short_term"
	MediumTerm = "medium_term"
	LongTerm   = "long_term"
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifySimplePlaylist `json:"items"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Next     *string                 `json:"next"`
	Previous *string                 `json:"previous"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

// SpotifyRecentlyPlayed is the cursor-paginated listening history.
type SpotifyRecentlyPlayed struct {
	Items []SpotifyPlayHistory `json:"items"`
	Next  *string              `json:"next"`
	Limit int                  `json:"limit"`
}

// SpotifyPlayHistory is one entry in the listening history.
type SpotifyPlayHistory struct {
	PlayedAt string       `json:"played_at"`
	Track    SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTop is a page of the user's top tracks.
type SpotifyPaginatedTop struct {
	Items  []SpotifyTrack `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Next   *string        `json:"next"`
}

type searchResult struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
		Total int            `json:"total"`
	} `json:"tracks"`
}

// SpotifyService is a typed client for the Spotify Web API.
//
// Authentication is delegated to the [Caller]: the CLI passes the retrying session proxy and
// the backend passes a [BearerCaller] holding a freshly exchanged token.
type SpotifyService struct {
	caller  Caller
	baseURL string
}

// NewSpotifyService creates a Spotify client. An empty baseURL defaults to [DefaultSpotifyAPIURL].
func NewSpotifyService(caller Caller, baseURL string) *SpotifyService {
	if baseURL == "" {
		baseURL = DefaultSpotifyAPIURL
	}
	return &SpotifyService{caller: caller, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs a provider request through the caller and decodes a successful body into result.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, result any) error {
	req := &Request{
		Method: method,
		URL:    s.baseURL + endpoint,
		Header: http.Header{"Accept": []string{"application/json"}},
	}

	resp, err := s.caller.Call(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(result)
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	var track SpotifyTrack
	if err := s.doRequest(ctx, http.MethodGet, "/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// TopTracks retrieves the user's most played tracks for timeRange.
func (s *SpotifyService) TopTracks(ctx context.Context, timeRange string, limit int) ([]Track, error) {
	switch timeRange {
	case "":
		timeRange = MediumTerm
	case ShortTerm, MediumTerm, LongTerm:
	default:
		return nil, fmt.Errorf("%w: time range %q", shared.ErrInvalidArgument, timeRange)
	}

	endpoint := fmt.Sprintf("/me/top/tracks?time_range=%s&limit=%d", timeRange, clampLimit(limit))

	var response SpotifyPaginatedTop
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Items))
	for _, item := range response.Items {
		tracks = append(tracks, ToTrack(item))
	}
	return tracks, nil
}

// RecentlyPlayed retrieves the user's listening history, newest first.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", clampLimit(limit))

	var response SpotifyRecentlyPlayed
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Items))
	for _, item := range response.Items {
		track := ToTrack(item.Track)
		track.PlayedAt = item.PlayedAt
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// SearchTracks searches the catalog for tracks matching query.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(clampLimit(limit)))

	var response searchResult
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		tracks = append(tracks, ToTrack(item))
	}
	return tracks, nil
}

// SavedTracks retrieves the user's saved tracks with pagination.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", clampLimit(limit), offset)

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", clampLimit(limit), offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var allPlaylists []Playlist
	limit := 50
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			allPlaylists = append(allPlaylists, Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}

	return allPlaylists, nil
}

// Probe issues a GET against endpoint and reports the resulting HTTP status.
//
// Non-2xx statuses are not errors here; only transport failures are returned.
func (s *SpotifyService) Probe(ctx context.Context, endpoint string) (int, error) {
	resp, err := s.caller.Call(ctx, &Request{Method: http.MethodGet, URL: s.baseURL + endpoint})

	var reqErr *shared.RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Status, nil
	case err != nil:
		return 0, err
	default:
		return resp.StatusCode, nil
	}
}

// ToTrack flattens a Spotify track into the listing shape used by the formatters.
func ToTrack(st SpotifyTrack) Track {
	track := Track{
		ID:         st.ID,
		Title:      st.Name,
		Album:      st.Album.Name,
		Duration:   st.DurationMS / 1000,
		Popularity: st.Popularity,
		URI:        st.URI,
	}

	names := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		names = append(names, a.Name)
	}
	track.Artist = strings.Join(names, ", ")
	return track
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 50:
		return 50
	default:
		return limit
	}
}
