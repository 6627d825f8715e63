package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// NewAPI builds a webrtc.API with the default codecs and pion's internal
// logging routed to zerolog. opts may adjust the SettingEngine further.
func NewAPI(opts ...func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(),
	}
	for _, opt := range opts {
		opt(&se)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}
