package labform

import (
	"context"
	"sync"
)

// Form owns one State and runs submits against a Resolver.
//
// Submit has no re-entrancy guard: overlapping submits both run and whichever
// settles last overwrites Result, Error and Loading. Views disable the
// trigger while Loading, which narrows but does not close that window.
type Form struct {
	mu       sync.Mutex
	state    State
	resolver Resolver
	onChange func(State)
}

// NewForm returns an idle form. onChange, if set, sees every new state.
func NewForm(r Resolver, onChange func(State)) *Form {
	return &Form{resolver: r, onChange: onChange}
}

// State returns a snapshot.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Dispatch applies e and returns the new state.
func (f *Form) Dispatch(e Event) State {
	f.mu.Lock()
	f.state = Reduce(f.state, e)
	s := f.state
	f.mu.Unlock()
	if f.onChange != nil {
		f.onChange(s)
	}
	return s
}

// Submit reads token and prompt, marks the form loading, performs the call
// and settles the outcome into state.
func (f *Form) Submit(ctx context.Context) State {
	s := f.Dispatch(SubmitStarted{})
	res, err := f.resolver.Resolve(ctx, s.Token, s.Prompt)
	return f.Dispatch(Settle(res, err))
}
