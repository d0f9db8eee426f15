package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

const (
	// DefaultGooglePhotosBaseURL is the Photos Library REST endpoint.
	DefaultGooglePhotosBaseURL = "https://photoslibrary.googleapis.com/v1"
	// GooglePhotosPageSize is the page size requested from mediaItems.list.
	GooglePhotosPageSize = 100
)

// GooglePhotosClient lists media items from the Photos Library API. It
// implements repository.CloudPhotoProvider. Authentication is carried by the
// http.Client, normally one built by oauth2.NewClient.
type GooglePhotosClient struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	now     func() time.Time
}

// NewGooglePhotosClient wraps an already authenticated HTTP client. An empty
// baseURL selects DefaultGooglePhotosBaseURL.
func NewGooglePhotosClient(httpClient *http.Client, baseURL string) *GooglePhotosClient {
	if baseURL == "" {
		baseURL = DefaultGooglePhotosBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GooglePhotosClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
	}
}

// SetRequestInterval spaces page requests at least interval apart so a full
// rebuild stays inside the API's per-minute quota. Zero removes the limit.
func (c *GooglePhotosClient) SetRequestInterval(interval time.Duration) {
	if interval <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Every(interval))
}

// NewGooglePhotosClientWithToken builds a client that sends accessToken as a
// bearer token on every request.
func NewGooglePhotosClientWithToken(ctx context.Context, accessToken, baseURL string) *GooglePhotosClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return NewGooglePhotosClient(oauth2.NewClient(ctx, ts), baseURL)
}

type mediaItemsResponse struct {
	MediaItems    []mediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

type mediaItem struct {
	ID            string        `json:"id"`
	BaseURL       string        `json:"baseUrl"`
	MediaMetadata mediaMetadata `json:"mediaMetadata"`
}

// The API sends width and height as decimal strings.
type mediaMetadata struct {
	CreationTime string `json:"creationTime"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	Photo        *struct {
		GPSLocation *struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"gpsLocation"`
	} `json:"photo"`
}

// FetchPage requests one page of media items. Items without an id or base URL
// are dropped; items without GPS data are returned with a nil Location.
func (c *GooglePhotosClient) FetchPage(ctx context.Context, pageToken string) (repository.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return repository.Page{}, fmt.Errorf("wait for request slot: %w", err)
	}

	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(GooglePhotosPageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mediaItems?"+q.Encode(), nil)
	if err != nil {
		return repository.Page{}, fmt.Errorf("build mediaItems request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return repository.Page{}, fmt.Errorf("mediaItems request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[PHOTOS] mediaItems returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return repository.Page{}, fmt.Errorf("mediaItems returned status %d", resp.StatusCode)
	}

	var payload mediaItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return repository.Page{}, fmt.Errorf("decode mediaItems: %w", err)
	}

	page := repository.Page{NextPageToken: payload.NextPageToken}
	for _, item := range payload.MediaItems {
		if item.ID == "" || item.BaseURL == "" {
			continue
		}
		page.Items = append(page.Items, c.toCloudPhoto(item))
	}
	return page, nil
}

func (c *GooglePhotosClient) toCloudPhoto(item mediaItem) repository.CloudPhoto {
	md := item.MediaMetadata
	photo := repository.CloudPhoto{
		ID:      item.ID,
		BaseURL: item.BaseURL,
	}

	photo.CreatedAt = c.now().UTC()
	if t, err := time.Parse(time.RFC3339Nano, md.CreationTime); err == nil {
		photo.CreatedAt = t.UTC()
	}
	photo.Width, _ = strconv.Atoi(md.Width)
	photo.Height, _ = strconv.Atoi(md.Height)

	if md.Photo != nil && md.Photo.GPSLocation != nil &&
		md.Photo.GPSLocation.Latitude != nil && md.Photo.GPSLocation.Longitude != nil {
		pt := entities.NewGeoPoint(*md.Photo.GPSLocation.Latitude, *md.Photo.GPSLocation.Longitude)
		if pt.Validate() == nil {
			photo.Location = &pt
		}
	}
	return photo
}
