package negotiation

// State is the position of a PeerSession in the offer/answer exchange.
// The offerer (candidate) walks Idle, OfferCreated, OfferSent,
// AnswerReceived, Connected; the responder (host) walks Idle,
// OfferReceived, AnswerSent, Connected.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateOfferSent
	StateAnswerReceived
	StateOfferReceived
	StateAnswerSent
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer-created"
	case StateOfferSent:
		return "offer-sent"
	case StateAnswerReceived:
		return "answer-received"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TransportState is what the underlying peer transport reports.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	return [...]string{"new", "connecting", "connected", "disconnected", "failed", "closed"}[s]
}
