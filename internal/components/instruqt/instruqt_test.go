// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

package instruqt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
)

// fakeAPI serves the two GraphQL operations and counts calls per operation.
type fakeAPI struct {
	tracksCalls atomic.Int32
	inviteCalls atomic.Int32
	failTracks  bool
	gqlErr      string

	mu         sync.Mutex
	lastInvite map[string]any
	lastAuth   string
}

func (f *fakeAPI) last() (string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth, f.lastInvite
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastAuth = r.Header.Get("Authorization")
	f.mu.Unlock()
	var req gqlRequest
	json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.Contains(req.Query, "tracks("):
		f.tracksCalls.Add(1)
		if f.failTracks {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"tracks": []Track{
			{ID: "t1", Slug: "infoblox-lab1", Title: "Infoblox DNS Basics"},
			{ID: "t2", Slug: "infoblox-uddi-ipam", Title: "Universal DDI IPAM"},
		}}})
	case strings.Contains(req.Query, "createTrackInvite"):
		f.inviteCalls.Add(1)
		if f.gqlErr != "" {
			json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]string{{"message": f.gqlErr}}})
			return
		}
		f.mu.Lock()
		f.lastInvite, _ = req.Variables["invite"].(map[string]any)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"createTrackInvite": map[string]string{"id": "inv-42"}}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, api *fakeAPI, c cache.Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	out := config.DevConfig().OutboundHTTP
	return New(Config{
		APIURL:        srv.URL + "/graphql",
		APIToken:      "tok",
		TeamSlug:      "acme",
		InviteBaseURL: "https://play.instruqt.com/",
		TracksTTL:     time.Minute,
	}, httpclient.New(&out), c, nil)
}

func TestListTracks(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, nil)

	tracks, err := c.ListTracks(context.Background())
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 2 || tracks[0].Slug != "infoblox-lab1" {
		t.Errorf("unexpected tracks %+v", tracks)
	}
	if auth, _ := api.last(); auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestListTracks_Cached(t *testing.T) {
	api := &fakeAPI{}
	mc := memory.New(time.Minute, 0)
	defer mc.Close()
	c := newTestClient(t, api, mc)

	for range 3 {
		if _, err := c.ListTracks(context.Background()); err != nil {
			t.Fatalf("ListTracks: %v", err)
		}
	}
	if n := api.tracksCalls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}
	if ok, _ := mc.Exists(context.Background(), "instruqt:tracks:acme"); !ok {
		t.Error("expected tracks under instruqt:tracks:acme")
	}
}

func TestListTracks_UpstreamFailure(t *testing.T) {
	c := newTestClient(t, &fakeAPI{failTracks: true}, nil)
	_, err := c.ListTracks(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestCreateInvite(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, nil)

	url, err := c.CreateInvite(context.Background(), "infoblox-uddi-ipam")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if url != "https://play.instruqt.com/acme/invite/inv-42" {
		t.Errorf("url = %q", url)
	}
	_, invite := api.last()
	ids, _ := invite["trackIDs"].([]any)
	if len(ids) != 1 || ids[0] != "t2" {
		t.Errorf("trackIDs = %v", invite["trackIDs"])
	}
}

func TestCreateInvite_Errors(t *testing.T) {
	t.Run("unknown slug", func(t *testing.T) {
		api := &fakeAPI{}
		c := newTestClient(t, api, nil)
		_, err := c.CreateInvite(context.Background(), "nope")
		if !errors.Is(err, ErrTrackNotFound) {
			t.Fatalf("expected ErrTrackNotFound, got %v", err)
		}
		if api.inviteCalls.Load() != 0 {
			t.Error("mutation must not run for unknown slug")
		}
	})
	t.Run("graphql errors", func(t *testing.T) {
		c := newTestClient(t, &fakeAPI{gqlErr: "quota exceeded"}, nil)
		_, err := c.CreateInvite(context.Background(), "infoblox-lab1")
		if !errors.Is(err, ErrUpstream) || !strings.Contains(err.Error(), "quota exceeded") {
			t.Fatalf("expected upstream error with message, got %v", err)
		}
	})
}
