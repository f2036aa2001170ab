package peer

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// DefaultWebRTCConfig returns the stock STUN configuration.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// pionPeer adapts a pion PeerConnection to the PeerConnection interface.
// Candidates cross the wire as ICECandidateInit JSON; SDP stays opaque.
type pionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionFactory returns a Factory backed by pion/webrtc. Failure to build
// a connection is reported as peer-unavailable: the runtime cannot do
// real-time media and the session degrades to chat only.
func NewPionFactory(cfg webrtc.Configuration) Factory {
	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnavailable, err)
		}
		// Recvonly transceivers so offers always carry audio/video m-lines
		// even before local tracks are attached.
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnavailable, err)
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnavailable, err)
		}
		return &pionPeer{pc: pc}, nil
	}
}

func (p *pionPeer) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (p *pionPeer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *pionPeer) SetRemoteOffer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

func (p *pionPeer) SetRemoteAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (p *pionPeer) AddICECandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return err
	}
	return p.pc.AddICECandidate(init)
}

func (p *pionPeer) OnICECandidate(fn func(candidate string)) {
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		data, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		fn(string(data))
	})
}

func (p *pionPeer) OnConnectionState(fn func(connected bool)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnected:
			fn(true)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			fn(false)
		}
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
