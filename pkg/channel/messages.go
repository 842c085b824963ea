package channel

// Kind identifies a message type on the kiosk channel. The set below is
// the complete vocabulary exchanged between a kiosk and the engine; a
// kind also forms the final token of the NATS subject the message
// travels on.
type Kind string

const (
	// Client to server.
	KindRequestToken Kind = "request-token"
	KindClientReady  Kind = "client-ready"
	KindAction       Kind = "action"
	KindResetAction  Kind = "reset-action"

	// Server to client.
	KindTokenIssued   Kind = "token-issued"
	KindConfiguration Kind = "configuration"
	KindStateUpdate   Kind = "state-update"
)

// StepInitial is the step every machine starts on and returns to after
// a reset.
const StepInitial = "initial"

// RequestToken asks the engine to issue a fresh session token for the
// identified machine configuration.
type RequestToken struct {
	MachineID string `json:"machine_id"`
}

// TokenIssued carries a newly issued token. Expiry is an absolute
// timestamp in seconds since the epoch.
type TokenIssued struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// ClientReady announces that the kiosk holds a token and is ready to
// receive configuration and state.
type ClientReady struct {
	Token string `json:"token"`
}

// Action is a named user action forwarded by the kiosk, authorized by
// the current token.
type Action struct {
	Token string         `json:"token"`
	Name  string         `json:"name"`
	Data  map[string]any `json:"data,omitempty"`
}

// ResetAction returns the machine to its initial step. Emitted by the
// idle monitor or an explicit user reset.
type ResetAction struct {
	Token string `json:"token"`
}

// Capabilities lists the device features a kiosk exposes.
type Capabilities struct {
	Touch    bool `json:"touch"`
	Keyboard bool `json:"keyboard"`
	Printer  bool `json:"printer"`
	Sound    bool `json:"sound"`
}

// MachineConfiguration is the server-declared descriptor for one
// kiosk. It is immutable once received; a new configuration replaces
// the old one wholesale.
type MachineConfiguration struct {
	ID                   string       `json:"id"`
	DefaultLanguage      string       `json:"default_language"`
	InactivityTimeoutSec int          `json:"inactivity_timeout_sec"`
	LoginMethods         []string     `json:"login_methods"`
	Capabilities         Capabilities `json:"capabilities"`
}

// Item is a single loan, hold, or fine entry shown on the kiosk.
type Item struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	DueAt  string  `json:"due_at,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// MachineState is the engine-computed snapshot of a kiosk's current
// screen. Snapshots are replaced wholesale on every update and never
// mutated locally by the client.
type MachineState struct {
	Step      string `json:"step"`
	LoanItems []Item `json:"loan_items,omitempty"`
	HoldItems []Item `json:"hold_items,omitempty"`
	FineItems []Item `json:"fine_items,omitempty"`
}
