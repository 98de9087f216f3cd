// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

// Package instruqt talks to the Instruqt GraphQL API: listing a team's tracks
// and minting track invites.
package instruqt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

var (
	ErrUpstream      = errors.New("instruqt request failed")
	ErrTrackNotFound = errors.New("track not found")
)

const listTracksQuery = `query ListTracks($org: String!) {
  tracks(organizationSlug: $org) { id slug title description }
}`

const createInviteMutation = `mutation CreateTrackInvite($invite: TrackInviteInput!) {
  createTrackInvite(trackInvite: $invite) { id }
}`

// Track is one lab visible to the team.
type Track struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Poster is the slice of the outbound HTTP client this package needs.
type Poster interface {
	PostJSON(ctx context.Context, url string, header http.Header, payload any) ([]byte, *http.Response, error)
}

// Config holds the upstream coordinates.
type Config struct {
	APIURL        string
	APIToken      string
	TeamSlug      string
	InviteBaseURL string
	TracksTTL     time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	cfg   Config
	http  Poster
	cache cache.Cache
	log   *slog.Logger
}

// New builds a client. A nil cache disables track caching.
func New(cfg Config, httpc Poster, c cache.Cache, log *slog.Logger) *Client {
	cfg.InviteBaseURL = strings.TrimSuffix(cfg.InviteBaseURL, "/")
	return &Client{cfg: cfg, http: httpc, cache: c, log: logutil.NoopIfNil(log)}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	body, resp, err := c.http.PostJSON(ctx, c.cfg.APIURL, header, gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var gr gqlResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%w: %s", ErrUpstream, strings.Join(msgs, "; "))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrUpstream, err)
	}
	return nil
}

func (c *Client) tracksKey() string {
	return "instruqt:tracks:" + c.cfg.TeamSlug
}

// ListTracks returns the team's tracks, served from cache while fresh.
func (c *Client) ListTracks(ctx context.Context) ([]Track, error) {
	if c.cache != nil {
		var cached []Track
		err := cache.GetJSON(ctx, c.cache, c.tracksKey(), &cached)
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, cache.ErrNotFound):
			c.log.Warn("track cache read failed", "error", err)
		}
	}

	var data struct {
		Tracks []Track `json:"tracks"`
	}
	if err := c.do(ctx, listTracksQuery, map[string]any{"org": c.cfg.TeamSlug}, &data); err != nil {
		return nil, err
	}
	tracks := data.Tracks
	if tracks == nil {
		tracks = []Track{}
	}
	c.log.Debug("fetched tracks", "team", c.cfg.TeamSlug, "count", len(tracks))

	if c.cache != nil {
		if err := cache.SetJSON(ctx, c.cache, c.tracksKey(), tracks, c.cfg.TracksTTL); err != nil {
			c.log.Warn("track cache write failed", "error", err)
		}
	}
	return tracks, nil
}

// CreateInvite mints a fresh invite for slug and returns its play URL.
func (c *Client) CreateInvite(ctx context.Context, slug string) (string, error) {
	tracks, err := c.ListTracks(ctx)
	if err != nil {
		return "", err
	}
	var trackID string
	for _, t := range tracks {
		if t.Slug == slug {
			trackID = t.ID
			break
		}
	}
	if trackID == "" {
		return "", fmt.Errorf("%w: %s", ErrTrackNotFound, slug)
	}

	var data struct {
		CreateTrackInvite struct {
			ID string `json:"id"`
		} `json:"createTrackInvite"`
	}
	vars := map[string]any{
		"invite": map[string]any{
			"title":    "Lab Router: " + slug,
			"trackIDs": []string{trackID},
		},
	}
	if err := c.do(ctx, createInviteMutation, vars, &data); err != nil {
		return "", err
	}
	id := data.CreateTrackInvite.ID
	if id == "" {
		return "", fmt.Errorf("%w: empty invite id", ErrUpstream)
	}
	return fmt.Sprintf("%s/%s/invite/%s", c.cfg.InviteBaseURL, c.cfg.TeamSlug, id), nil
}
