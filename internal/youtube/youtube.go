// SPDX-License-Identifier: MIT

// Package youtube is the unauthenticated YouTube client used by the Feed
// Poller, the channel avatar fetch, and the HTTP API's POST /api/task
// bare-URL resolution. It talks to public feed and page endpoints only; no
// API key or OAuth token is ever involved.
package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/HoloArchivists/hoshinova-go/internal/buildinfo"
)

const (
	// DefaultTimeout bounds every request this client makes.
	DefaultTimeout = 15 * time.Second

	feedURLTemplate    = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"
	channelURLTemplate = "https://www.youtube.com/channel/%s"
	watchURLTemplate   = "https://www.youtube.com/watch?v=%s"
)

// Client fetches channel feeds, channel avatars, and video metadata from
// YouTube's public, unauthenticated surfaces.
type Client struct {
	httpClient *http.Client
	userAgent  string

	// Overridable only from within the package (tests point these at an
	// httptest.Server); production code always uses the youtube.com defaults.
	feedURLTemplate    string
	channelURLTemplate string
	watchURLTemplate   string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client, chiefly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a Client ready to use.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:         &http.Client{Timeout: DefaultTimeout},
		userAgent:          buildinfo.UserAgent(),
		feedURLTemplate:    feedURLTemplate,
		channelURLTemplate: channelURLTemplate,
		watchURLTemplate:   watchURLTemplate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeedEntry is one video reported by a channel's RSS feed.
type FeedEntry struct {
	VideoID     string
	ChannelID   string
	ChannelName string
	Title       string
	Description string
	Thumbnail   string
	Published   time.Time
	Updated     time.Time
}

// rawFeed mirrors the Atom-flavored feed YouTube actually serves at
// /feeds/videos.xml; the element names below are what's on the wire, not a
// generic RSS vocabulary.
type rawFeed struct {
	XMLName xml.Name   `xml:"feed"`
	Entries []rawEntry `xml:"entry"`
}

type rawEntry struct {
	VideoID   string       `xml:"videoId"`
	ChannelID string       `xml:"channelId"`
	Title     string       `xml:"title"`
	Author    rawAuthor    `xml:"author"`
	Published rawRFC3339   `xml:"published"`
	Updated   rawRFC3339   `xml:"updated"`
	Group     rawMediaGroup `xml:"group"`
}

type rawAuthor struct {
	Name string `xml:"name"`
}

// rawMediaGroup mirrors the media: namespace group YouTube embeds in each
// entry, carrying the thumbnail and description the Feed Poller copies onto
// a Task.
type rawMediaGroup struct {
	Description string         `xml:"description"`
	Thumbnail   rawMediaThumb  `xml:"thumbnail"`
}

type rawMediaThumb struct {
	URL string `xml:"url,attr"`
}

// rawRFC3339 lets the zero value decode to a zero time.Time instead of
// failing the whole feed parse over one malformed timestamp.
type rawRFC3339 time.Time

func (r *rawRFC3339) UnmarshalText(text []byte) error {
	t, err := time.Parse(time.RFC3339, string(text))
	if err != nil {
		return nil
	}
	*r = rawRFC3339(t)
	return nil
}

// FetchFeed retrieves and parses the RSS feed for channelID.
func (c *Client) FetchFeed(ctx context.Context, channelID string) ([]FeedEntry, error) {
	url := fmt.Sprintf(c.feedURLTemplate, channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("youtube: build feed request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: fetch feed for %s: %w", channelID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube: feed for %s returned status %d", channelID, resp.StatusCode)
	}

	var feed rawFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("youtube: parse feed for %s: %w", channelID, err)
	}

	entries := make([]FeedEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entries = append(entries, FeedEntry{
			VideoID:     e.VideoID,
			ChannelID:   e.ChannelID,
			ChannelName: e.Author.Name,
			Title:       e.Title,
			Description: e.Group.Description,
			Thumbnail:   e.Group.Thumbnail.URL,
			Published:   time.Time(e.Published),
			Updated:     time.Time(e.Updated),
		})
	}
	return entries, nil
}

// videoIDPattern matches the video id out of any of the URL shapes
// POST /api/task is expected to receive: a youtu.be short link, a full
// watch/live/shorts/embed URL, or a bare 11-character id with nothing else.
var videoIDPattern = regexp.MustCompile(`(?:youtu\.be/|youtube\.com/(?:watch\?(?:.*&)?v=|live/|shorts/|embed/))([A-Za-z0-9_-]{11})|^([A-Za-z0-9_-]{11})$`)

// ExtractVideoID pulls an 11-character video id out of a YouTube URL, or
// passes a bare id straight through. It returns an error if url matches
// neither shape.
func ExtractVideoID(url string) (string, error) {
	url = strings.TrimSpace(url)
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("youtube: could not find a video id in %q", url)
	}
	if m[1] != "" {
		return m[1], nil
	}
	return m[2], nil
}

var avatarPattern = regexp.MustCompile(`<meta name="twitter:image" content="(.*?)"`)

// FetchAvatar scrapes the channel's public page for its profile picture URL.
func (c *Client) FetchAvatar(ctx context.Context, channelID string) (string, error) {
	url := fmt.Sprintf(c.channelURLTemplate, channelID)

	body, err := c.fetchHTML(ctx, url)
	if err != nil {
		return "", fmt.Errorf("youtube: fetch channel page for %s: %w", channelID, err)
	}

	m := avatarPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("youtube: no picture URL found for channel %s", channelID)
	}
	return string(m[1]), nil
}

var playerResponsePattern = regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*(\{.*?\});`)

// VideoDetails is the subset of ytInitialPlayerResponse this program needs
// to turn a bare video ID or URL into a recordable Task.
type VideoDetails struct {
	VideoID      string
	Title        string
	ChannelID    string
	ChannelName  string
	IsLive       bool
	IsLiveUpcoming bool
}

type playerResponse struct {
	VideoDetails struct {
		VideoID          string `json:"videoId"`
		Title            string `json:"title"`
		ChannelID        string `json:"channelId"`
		Author           string `json:"author"`
		IsLive           bool   `json:"isLive"`
		IsLiveContent    bool   `json:"isLiveContent"`
		IsUpcoming       bool   `json:"isUpcoming"`
	} `json:"videoDetails"`
}

// ResolveVideo fetches the watch page for videoID and extracts the fields
// needed to build a Task, the way POST /api/task resolves a bare YouTube
// URL into a recordable channel/video pair.
func (c *Client) ResolveVideo(ctx context.Context, videoID string) (*VideoDetails, error) {
	url := fmt.Sprintf(c.watchURLTemplate, videoID)

	body, err := c.fetchHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("youtube: fetch watch page for %s: %w", videoID, err)
	}

	m := playerResponsePattern.FindSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("youtube: could not locate player response for %s", videoID)
	}

	var parsed playerResponse
	if err := json.Unmarshal(m[1], &parsed); err != nil {
		return nil, fmt.Errorf("youtube: parse player response for %s: %w", videoID, err)
	}
	if parsed.VideoDetails.VideoID == "" {
		return nil, fmt.Errorf("youtube: player response for %s has no videoDetails", videoID)
	}

	return &VideoDetails{
		VideoID:        parsed.VideoDetails.VideoID,
		Title:          parsed.VideoDetails.Title,
		ChannelID:      parsed.VideoDetails.ChannelID,
		ChannelName:    parsed.VideoDetails.Author,
		IsLive:         parsed.VideoDetails.IsLive,
		IsLiveUpcoming: parsed.VideoDetails.IsUpcoming,
	}, nil
}

func (c *Client) fetchHTML(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
