package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// ErrNoMatch is returned when a place search finds nothing.
var ErrNoMatch = errors.New("no matching place")

type textSearcher interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
}

// Options bias results toward a region and language, e.g. "us" and "en".
type Options struct {
	Region   string
	Language string
}

// NewClient builds the Google Maps client shared by the place and route services.
func NewClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client textSearcher
	opts   Options
}

func NewPlacesService(client *maps.Client, opts Options) *PlacesService {
	return &PlacesService{client: client, opts: opts}
}

// Resolve turns free text like "union station" into the formatted address of the best
// text-search match. Callers keep their original text when it fails.
func (s *PlacesService) Resolve(ctx context.Context, text string) (string, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return "", ErrNoMatch
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Language: s.opts.Language,
		Region:   s.opts.Region,
	})
	if err != nil {
		return "", fmt.Errorf("places api error: %w", err)
	}
	for _, result := range resp.Results {
		if result.FormattedAddress == "" {
			continue
		}
		if result.Name != "" && !containsIgnoreCase(result.FormattedAddress, result.Name) {
			return result.Name + ", " + result.FormattedAddress, nil
		}
		return result.FormattedAddress, nil
	}
	return "", ErrNoMatch
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
