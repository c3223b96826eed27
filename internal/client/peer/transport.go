package peer

import "github.com/avdeyev/voicemesh/internal/protocol"

// Transport is one peer-to-peer connection underneath an engine. The real
// implementation wraps a pion PeerConnection; tests plug in a fake.
type Transport interface {
	// CreateOffer creates and applies a local offer, returning its SDP.
	CreateOffer() (string, error)
	// ApplyOffer applies a remote offer, creates and applies a local answer
	// and returns the answer SDP.
	ApplyOffer(sdp string) (string, error)
	// ApplyAnswer applies a remote answer to an outstanding local offer.
	ApplyAnswer(sdp string) error
	// AddCandidate applies a remote ICE candidate.
	AddCandidate(c protocol.Candidate) error
	// HasRemoteDescription reports whether a remote description was applied.
	HasRemoteDescription() bool
	Close()
}

// Hooks are the callbacks a transport fires from its own goroutines.
// OnCandidate reports locally gathered candidates; the rest report
// connectivity health.
type Hooks struct {
	OnCandidate    func(protocol.Candidate)
	OnConnected    func()
	OnDisconnected func()
	OnFailed       func()
}

// TransportFactory builds a fresh transport wired with the given hooks.
type TransportFactory func(h Hooks) (Transport, error)
