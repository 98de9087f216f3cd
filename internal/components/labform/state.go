// Package labform is the Lab Router form: its state record, the pure reducer
// that moves it between phases, and the client for the /resolve call.
// The web and terminal views both drive a State through Reduce.
package labform

// Labels shown on the submit control.
const (
	LabelIdle = "Get Invite"
	LabelBusy = "Thinking…"
)

// Result is a successful /resolve payload.
type Result struct {
	InviteURL string `json:"invite_url"`
	Slug      string `json:"slug,omitempty"`
}

// State is owned by a single view and lives only as long as it does.
// After a settled request at most one of Result and Error is set.
type State struct {
	Token   string
	Prompt  string
	Result  *Result
	Error   string
	Loading bool
}

// Phase is the coarse position of a State in idle → loading → success|failure.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
)

// Phase derives the current phase.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Result != nil:
		return PhaseSuccess
	case s.Error != "":
		return PhaseFailure
	default:
		return PhaseIdle
	}
}

// ButtonLabel is the label the submit control shows in this state.
func (s State) ButtonLabel() string {
	if s.Loading {
		return LabelBusy
	}
	return LabelIdle
}

// CanSubmit reports whether the trigger is enabled.
func (s State) CanSubmit() bool { return !s.Loading }

// Event is an input to Reduce.
type Event interface{ event() }

type (
	TokenChanged     struct{ Value string }
	PromptChanged    struct{ Value string }
	SubmitStarted    struct{}
	RequestSucceeded struct{ Result Result }
	RequestFailed    struct{ Message string }
)

func (TokenChanged) event()     {}
func (PromptChanged) event()    {}
func (SubmitStarted) event()    {}
func (RequestSucceeded) event() {}
func (RequestFailed) event()    {}

// Reduce returns the state after e. It does not mutate s.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case TokenChanged:
		s.Token = ev.Value
	case PromptChanged:
		s.Prompt = ev.Value
	case SubmitStarted:
		s.Result = nil
		s.Error = ""
		s.Loading = true
	case RequestSucceeded:
		r := ev.Result
		s.Result = &r
		s.Error = ""
		s.Loading = false
	case RequestFailed:
		s.Result = nil
		s.Error = ev.Message
		s.Loading = false
	}
	return s
}

// Settle maps the outcome of a resolve call to the event that records it.
func Settle(res *Result, err error) Event {
	if err != nil {
		return RequestFailed{Message: ErrorMessage(err)}
	}
	if res == nil {
		return RequestFailed{Message: MsgInvalidResponse}
	}
	return RequestSucceeded{Result: *res}
}
