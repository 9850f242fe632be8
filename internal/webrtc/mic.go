package webrtc

import (
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MicSampleRate is the capture rate for the G.711 uplink.
const MicSampleRate = 8000

// MicTrack is the microphone uplink. It is created disabled; while
// disabled, frames are dropped before they reach the wire, which is the
// push-to-talk gate. Audio goes up as G.711 µ-law, which the remote end
// accepts and which needs no codec dependency to produce.
type MicTrack struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	closed  atomic.Bool
}

func NewMicTrack() (*MicTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: MicSampleRate,
		Channels:  1,
	}, "audio", "xiaoqiu-mic")
	if err != nil {
		return nil, err
	}
	return &MicTrack{track: track}, nil
}

func (m *MicTrack) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

func (m *MicTrack) Enabled() bool {
	return m.enabled.Load()
}

// WriteFrame sends one mono PCM frame in [-1,1] captured at
// MicSampleRate. Frames written while disabled or after Close are
// silently dropped.
func (m *MicTrack) WriteFrame(pcm []float32) error {
	if !m.enabled.Load() || m.closed.Load() || len(pcm) == 0 {
		return nil
	}

	data := make([]byte, len(pcm))
	for i, s := range pcm {
		data[i] = mulawEncode(s)
	}

	duration := time.Duration(len(pcm)) * time.Second / MicSampleRate
	return m.track.WriteSample(media.Sample{Data: data, Duration: duration})
}

func (m *MicTrack) Close() error {
	m.closed.Store(true)
	m.enabled.Store(false)
	return nil
}

const mulawBias = 0x84

// mulawEncode converts one sample in [-1,1] to G.711 µ-law.
func mulawEncode(sample float32) byte {
	v := int32(sample * 32767)
	sign := byte(0)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > 32635 {
		v = 32635
	}
	v += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); mask != 0 && v&mask == 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte((v >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}
