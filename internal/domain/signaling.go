package domain

// SessionDescription is an opaque negotiation payload describing one
// side's proposed media parameters. Type is "offer" or "answer".
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is an opaque network reachability hint. The field layout
// mirrors the browser-side RTCIceCandidateInit so both ends can exchange
// it through the store verbatim.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Offer sits at webrtc/offers/<target> until the target consumes it.
// At most one is pending per target.
type Offer struct {
	From Identity           `json:"from"`
	SDP  SessionDescription `json:"sdp"`
}

// Answer sits at webrtc/answers/<target>, same discipline as Offer.
type Answer struct {
	From Identity           `json:"from"`
	SDP  SessionDescription `json:"sdp"`
}

// IceCandidate entries accumulate under webrtc/ice/<target>/<key> and are
// removed one by one as the target drains its inbox.
type IceCandidate struct {
	From Identity  `json:"from"`
	ICE  Candidate `json:"ice"`
}
