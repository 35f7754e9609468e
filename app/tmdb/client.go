package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIURL   = "https://api.themoviedb.org/3"
	defaultImageURL = "https://image.tmdb.org/t/p"
)

// Image size classes served by TMDb's image CDN.
const (
	PosterWidth   = 780
	BackdropWidth = 1280
)

// UpstreamError reports a failed call to TMDb: non-200 status, network
// failure, or undecodable body.
type UpstreamError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tmdb %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("tmdb %s: unexpected status %d", e.Endpoint, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Client struct {
	apiURL    string
	imageURL  string
	apiKey    string
	userAgent string
	client    *http.Client
}

func NewClient(apiKey, userAgent string, timeout time.Duration) *Client {
	return &Client{
		apiURL:    defaultAPIURL,
		imageURL:  defaultImageURL,
		apiKey:    apiKey,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// SetAPIURL overrides the API base URL. Used by tests.
func (c *Client) SetAPIURL(apiURL string) {
	c.apiURL = strings.TrimRight(apiURL, "/")
}

// SetImageURL overrides the image CDN base URL. Used by tests.
func (c *Client) SetImageURL(imageURL string) {
	c.imageURL = strings.TrimRight(imageURL, "/")
}

func (c *Client) fetch(ctx context.Context, slug string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	endpoint := fmt.Sprintf("%s/%s?%s", c.apiURL, slug, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &UpstreamError{Endpoint: slug, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &UpstreamError{Endpoint: slug, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &UpstreamError{Endpoint: slug, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Endpoint: slug, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

// SearchByTitle queries TMDb's movie search. Zero matches is a valid,
// empty page, not an error.
func (c *Client) SearchByTitle(ctx context.Context, title string, page int) (*SearchPage, error) {
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("query", title)
	params.Set("page", strconv.Itoa(page))

	var result SearchPage
	if err := c.fetch(ctx, "search/movie", params, &result); err != nil {
		return nil, err
	}
	if result.Results == nil {
		result.Results = []SearchResult{}
	}

	return &result, nil
}

func (c *Client) FetchDetails(ctx context.Context, tmdbID int) (*Details, error) {
	var details Details
	slug := fmt.Sprintf("movie/%d", tmdbID)

	if err := c.fetch(ctx, slug, nil, &details); err != nil {
		return nil, err
	}

	return &details, nil
}

func (c *Client) FetchCredits(ctx context.Context, tmdbID int) (*Credits, error) {
	var credits Credits
	slug := fmt.Sprintf("movie/%d/credits", tmdbID)

	if err := c.fetch(ctx, slug, nil, &credits); err != nil {
		return nil, err
	}

	return &credits, nil
}

// ImageURL builds the CDN URL for an image path at the given width class.
func (c *Client) ImageURL(width int, path string) string {
	return fmt.Sprintf("%s/w%d/%s", c.imageURL, width, strings.TrimLeft(path, "/"))
}

// Directors extracts unique director names from the crew list.
func (cr *Credits) Directors() []string {
	return cr.crewNames(func(m CrewMember) bool {
		return m.Department == "Directing" && (m.Job == "Director" || m.Job == "Directed by")
	})
}

// Writers extracts unique writer names from the crew list. Screenplay
// credits count as writing credits.
func (cr *Credits) Writers() []string {
	return cr.crewNames(func(m CrewMember) bool {
		return m.Department == "Writing" && (m.Job == "Writer" || strings.Contains(m.Job, "Screenplay"))
	})
}

func (cr *Credits) crewNames(match func(CrewMember) bool) []string {
	var names []string
	seen := make(map[string]bool)

	for _, member := range cr.Crew {
		if !match(member) || member.Name == "" || seen[member.Name] {
			continue
		}
		seen[member.Name] = true
		names = append(names, member.Name)
	}

	return names
}
