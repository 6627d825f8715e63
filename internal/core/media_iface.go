package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is one side of a 1:1 peer connection. Offer and answer
// creation block until ICE gathering completes, so the returned
// descriptions already carry every candidate.
type MediaConnection interface {
	// CreateOffer configures the connection as the offering side.
	CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer configures the connection as the answering side.
	ApplyOfferAndCreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnClosed sets a callback fired once when the connection fails or closes.
	OnClosed(func())
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
}
