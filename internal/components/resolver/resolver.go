// Package resolver turns a free-text prompt into a lab slug and an invite.
//
// Matching runs in order: the static intent map, then a title match over the
// team's tracks, then the optional LLM chooser. The first hit wins.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

var (
	ErrNoMatchingLab = errors.New("no matching lab")
	ErrListTracks    = errors.New("failed to list tracks")
	ErrChooser       = errors.New("lab selection failed")
)

// Intent maps a keyword set to a slug. It matches when every keyword is in the prompt.
type Intent struct {
	Keywords []string `mapstructure:"keywords"`
	Slug     string   `mapstructure:"slug"`
}

// DefaultIntents is the built-in intent map, checked in order.
var DefaultIntents = []Intent{
	{Keywords: []string{"uddi", "aws", "azure"}, Slug: "infoblox-uddi-ipam"},
	{Keywords: []string{"dns"}, Slug: "infoblox-lab1"},
}

// DefaultMenuSize caps how many tracks the chooser sees.
const DefaultMenuSize = 50

// Labs is the upstream track catalogue.
type Labs interface {
	ListTracks(ctx context.Context) ([]instruqt.Track, error)
	CreateInvite(ctx context.Context, slug string) (string, error)
}

// Chooser picks a slug from menu. It returns "" when it has no answer.
type Chooser interface {
	ChooseSlug(ctx context.Context, prompt string, menu []instruqt.Track) (string, error)
}

// Options tune matching. Zero values select defaults.
type Options struct {
	Intents  []Intent
	MenuSize int

	// KeepPrompts includes prompt text in logs and ledger records.
	KeepPrompts bool
}

// Match is the outcome of slug selection.
type Match struct {
	Slug   string
	Source string
}

// Invite is a minted invite.
type Invite struct {
	Slug      string `json:"slug"`
	InviteURL string `json:"invite_url"`
}

// Resolver is safe for concurrent use.
type Resolver struct {
	labs    Labs
	chooser Chooser
	ledger  store.InviteLedger
	intents []Intent
	menu    int
	opts    Options
	log     *slog.Logger
}

// New builds a resolver. chooser and ledger may be nil.
func New(labs Labs, chooser Chooser, ledger store.InviteLedger, opts Options, log *slog.Logger) *Resolver {
	intents := opts.Intents
	if len(intents) == 0 {
		intents = DefaultIntents
	}
	menu := opts.MenuSize
	if menu <= 0 {
		menu = DefaultMenuSize
	}
	return &Resolver{
		labs:    labs,
		chooser: chooser,
		ledger:  ledger,
		intents: intents,
		menu:    menu,
		opts:    opts,
		log:     logutil.NoopIfNil(log),
	}
}

// Tokenize lowercases prompt and splits it on whitespace into a set.
func Tokenize(prompt string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(prompt))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func containsAll(set map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func subsetOf(tokens map[string]struct{}, words []string) bool {
	have := make(map[string]struct{}, len(words))
	for _, w := range words {
		have[w] = struct{}{}
	}
	for t := range tokens {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

// MatchIntent returns the first intent whose keywords all appear in tokens.
func (r *Resolver) MatchIntent(tokens map[string]struct{}) (string, bool) {
	for _, in := range r.intents {
		if len(in.Keywords) > 0 && containsAll(tokens, in.Keywords) {
			return in.Slug, true
		}
	}
	return "", false
}

// MatchTitle returns the first track whose title words cover every token.
func MatchTitle(tokens map[string]struct{}, tracks []instruqt.Track) (string, bool) {
	for _, t := range tracks {
		if subsetOf(tokens, strings.Fields(strings.ToLower(t.Title))) {
			return t.Slug, true
		}
	}
	return "", false
}

// Menu renders tracks as "- slug: title" lines.
func Menu(tracks []instruqt.Track) string {
	var sb strings.Builder
	for i, t := range tracks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s: %s", t.Slug, t.Title)
	}
	return sb.String()
}

// Match selects a slug for prompt without creating an invite.
func (r *Resolver) Match(ctx context.Context, prompt string) (Match, error) {
	// An empty token set is covered by every title: a blank prompt takes the first track.
	tokens := Tokenize(prompt)

	if slug, ok := r.MatchIntent(tokens); ok {
		return Match{Slug: slug, Source: store.SourceIntent}, nil
	}

	tracks, err := r.labs.ListTracks(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %w", ErrListTracks, err)
	}
	if slug, ok := MatchTitle(tokens, tracks); ok {
		return Match{Slug: slug, Source: store.SourceTitle}, nil
	}

	if r.chooser == nil {
		return Match{}, ErrNoMatchingLab
	}
	menu := tracks[:min(r.menu, len(tracks))]
	slug, err := r.chooser.ChooseSlug(ctx, prompt, menu)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %w", ErrChooser, err)
	}
	if slug == "" {
		return Match{}, ErrNoMatchingLab
	}
	for _, t := range tracks {
		if t.Slug == slug {
			return Match{Slug: slug, Source: store.SourceLLM}, nil
		}
	}
	r.log.Warn("chooser returned unknown slug", "slug", slug)
	return Match{}, ErrNoMatchingLab
}

// Resolve matches prompt, mints an invite and records it.
func (r *Resolver) Resolve(ctx context.Context, prompt string) (Invite, error) {
	m, err := r.Match(ctx, prompt)
	if err != nil {
		return Invite{}, err
	}
	r.log.Info("prompt matched", r.promptAttrs(prompt, "slug", m.Slug, "source", m.Source)...)
	return r.issue(ctx, m.Slug, m.Source, prompt)
}

// Invite mints an invite for a caller-chosen slug.
func (r *Resolver) Invite(ctx context.Context, slug string) (Invite, error) {
	return r.issue(ctx, slug, store.SourceDirect, "")
}

func (r *Resolver) issue(ctx context.Context, slug, source, prompt string) (Invite, error) {
	url, err := r.labs.CreateInvite(ctx, slug)
	if err != nil {
		return Invite{}, err
	}
	if r.ledger != nil {
		rec := &store.InviteRecord{Slug: slug, InviteURL: url, Source: source}
		if r.opts.KeepPrompts {
			rec.Prompt = prompt
		}
		if err := r.ledger.Record(ctx, rec); err != nil {
			r.log.Warn("failed to record invite", "slug", slug, "error", err)
		}
	}
	return Invite{Slug: slug, InviteURL: url}, nil
}

func (r *Resolver) promptAttrs(prompt string, args ...any) []any {
	if r.opts.KeepPrompts {
		return append(args, "prompt", prompt)
	}
	return args
}
