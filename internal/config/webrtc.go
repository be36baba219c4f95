package config

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

type WebRTCConfig struct {
	Configuration webrtc.Configuration
	SettingEngine webrtc.SettingEngine
	Publisher     DirectionConfig
}

type RTPHeaderExtensionConfig struct {
	Audio []string
	Video []string
}

type RTCPFeedbackConfig struct {
	Audio []webrtc.RTCPFeedback
	Video []webrtc.RTCPFeedback
}

type DirectionConfig struct {
	RTPHeaderExtension RTPHeaderExtensionConfig
	RTCPFeedback       RTCPFeedbackConfig
}

func NewWebRTCConfig(config *Config) (*WebRTCConfig, error) {
	iceServers := make([]webrtc.ICEServer, 0, len(config.RTC.StunServers))
	for _, s := range config.RTC.StunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{"stun:" + s}})
	}

	c := webrtc.Configuration{
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
		ICEServers:   iceServers,
	}
	s := webrtc.SettingEngine{}

	networkTypes := make([]webrtc.NetworkType, 0, 2)
	// Use only UDP
	networkTypes = append(networkTypes,
		webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6,
	)
	if err := s.SetEphemeralUDPPortRange(uint16(config.RTC.ICEPortRangeStart), uint16(config.RTC.ICEPortRangeEnd)); err != nil {
		return nil, err
	}
	s.SetNetworkTypes(networkTypes)

	publisherConfig := DirectionConfig{
		RTPHeaderExtension: RTPHeaderExtensionConfig{
			Audio: []string{
				sdp.SDESMidURI,
				sdp.SDESRTPStreamIDURI,
				sdp.AudioLevelURI,
			},
			Video: []string{
				sdp.SDESMidURI,
				sdp.SDESRTPStreamIDURI,
				sdp.TransportCCURI,
			},
		},
		RTCPFeedback: RTCPFeedbackConfig{
			Video: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
	}

	return &WebRTCConfig{
		Configuration: c,
		SettingEngine: s,
		Publisher:     publisherConfig,
	}, nil
}
