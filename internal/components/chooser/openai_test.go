// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

package chooser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
)

var menu = []instruqt.Track{
	{Slug: "infoblox-lab1", Title: "Infoblox DNS Basics"},
	{Slug: "threat-defense", Title: "Threat Defense"},
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func toolCompletion(name, arguments string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-2",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []map[string]any{{
					"id":       "call_1",
					"type":     "function",
					"function": map[string]any{"name": name, "arguments": arguments},
				}},
			},
		}},
	}
}

func newServer(t *testing.T, h http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"}, nil)
}

func TestNew_DisabledWithoutKey(t *testing.T) {
	if New(Config{}, nil) != nil {
		t.Error("expected nil chooser without API key")
	}
}

func TestChooseSlug(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toolCompletion(ToolName, `{"slug":"threat-defense"}`))
	})

	slug, err := c.ChooseSlug(context.Background(), "secure my network", menu)
	if err != nil {
		t.Fatalf("ChooseSlug: %v", err)
	}
	if slug != "threat-defense" {
		t.Errorf("slug = %q", slug)
	}

	gotBody := <-bodies
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	content, _ := user["content"].(string)
	want := "Prompt: secure my network\n\nAvailable labs:\n- infoblox-lab1: Infoblox DNS Basics\n- threat-defense: Threat Defense"
	if content != want {
		t.Errorf("user message = %q, want %q", content, want)
	}

	tools, _ := gotBody["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn, _ := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != ToolName {
		t.Errorf("tool name = %v", fn["name"])
	}
	params, _ := fn["parameters"].(map[string]any)
	if req, _ := params["required"].([]any); len(req) != 1 || req[0] != "slug" {
		t.Errorf("tool parameters = %v", params)
	}
	choice, _ := gotBody["tool_choice"].(map[string]any)
	choiceFn, _ := choice["function"].(map[string]any)
	if choice["type"] != "function" || choiceFn["name"] != ToolName {
		t.Errorf("tool_choice = %v, want forced %s", gotBody["tool_choice"], ToolName)
	}
}

func TestChooseSlug_Replies(t *testing.T) {
	tests := []struct {
		name  string
		reply map[string]any
		want  string
	}{
		{"forced call", toolCompletion(ToolName, `{"slug":"infoblox-lab1"}`), "infoblox-lab1"},
		{"other function ignored", toolCompletion("something_else", `{"slug":"infoblox-lab1"}`), ""},
		{"empty arguments", toolCompletion(ToolName, `{}`), ""},
		{"text reply from compatible endpoint", completion(`{"slug": "threat-defense"}`), "threat-defense"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tt.reply)
			})
			slug, err := c.ChooseSlug(context.Background(), "p", menu)
			if err != nil {
				t.Fatalf("ChooseSlug: %v", err)
			}
			if slug != tt.want {
				t.Errorf("slug = %q, want %q", slug, tt.want)
			}
		})
	}
}

func TestChooseSlug_RateLimited(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})
	slug, err := c.ChooseSlug(context.Background(), "p", menu)
	if err != nil || slug != "" {
		t.Errorf("rate limited: slug=%q err=%v, want empty and nil", slug, err)
	}
}

func TestChooseSlug_ServerError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	})
	if _, err := c.ChooseSlug(context.Background(), "p", menu); err == nil {
		t.Error("expected error on 400")
	}
}

func TestParseSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"slug":"infoblox-lab1"}`, "infoblox-lab1"},
		{"```json\n{\"slug\": \"threat-defense\"}\n```", "threat-defense"},
		{`Sure! {"slug": "a-b"} hope that helps`, "a-b"},
		{"`infoblox-lab1`", "infoblox-lab1"},
		{"I am not sure", ""},
		{"", ""},
		{`{"slug": ""}`, ""},
	}
	for _, tt := range tests {
		if got := ParseSlug(tt.in); got != tt.want {
			t.Errorf("ParseSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
