package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"xiaoqiu/internal/audio"
	"xiaoqiu/internal/config"
	"xiaoqiu/internal/webrtc"
	"xiaoqiu/pkg/interfaces"
)

// audioEngine owns the OS audio handles. malgo and oto contexts are
// created once for the process; each session gets a fresh mic track and
// speaker player on top of them.
type audioEngine struct {
	malgoCtx *malgo.AllocatedContext
	otoCtx   *oto.Context
	stats    *audio.Collector

	mu     sync.Mutex
	device *malgo.Device
	track  *webrtc.MicTrack
}

func newAudioEngine(cfg *config.AudioConfig) (*audioEngine, error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init capture context: %w", err)
	}

	// Short playback buffer keeps the tutor's speech responsive.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready

	return &audioEngine{
		malgoCtx: malgoCtx,
		otoCtx:   otoCtx,
		stats:    audio.NewCollector(webrtc.MicSampleRate),
	}, nil
}

// Capture implements interfaces.MicDevice. The capture device starts on
// first use and keeps running; sessions swap the track it feeds.
func (e *audioEngine) Capture(ctx context.Context) (interfaces.LocalAudioTrack, error) {
	track, err := webrtc.NewMicTrack()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.track = track

	if e.device == nil {
		deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = 1
		deviceConfig.SampleRate = webrtc.MicSampleRate
		deviceConfig.PeriodSizeInMilliseconds = 20

		callbacks := malgo.DeviceCallbacks{
			Data: func(_, input []byte, _ uint32) {
				frame := s16ToFloat(input)
				e.mu.Lock()
				current := e.track
				e.mu.Unlock()
				if current == nil {
					return
				}
				if current.Enabled() {
					e.stats.Add(frame)
				}
				current.WriteFrame(frame)
			},
		}

		device, err := malgo.InitDevice(e.malgoCtx.Context, deviceConfig, callbacks)
		if err != nil {
			return nil, fmt.Errorf("failed to init microphone: %w", err)
		}
		if err := device.Start(); err != nil {
			device.Uninit()
			return nil, fmt.Errorf("failed to start microphone: %w", err)
		}
		e.device = device
	}

	return track, nil
}

// NewSink creates a speaker sink for one session.
func (e *audioEngine) NewSink() (interfaces.AudioSink, error) {
	return newSpeakerSink(e.otoCtx), nil
}

func (e *audioEngine) Close() {
	e.mu.Lock()
	device := e.device
	e.device = nil
	e.track = nil
	e.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	e.malgoCtx.Uninit()
}

// speakerSink plays the remote stream through oto. It buffers decoded
// frames and serves them to the player via io.Reader pull.
type speakerSink struct {
	otoCtx *oto.Context

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	player *oto.Player
	src    interfaces.RemoteAudioSource
	frames <-chan []float32
}

func newSpeakerSink(otoCtx *oto.Context) *speakerSink {
	s := &speakerSink{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Play subscribes to the source and starts playback. Only the first
// source is played; a session has one remote stream.
func (s *speakerSink) Play(src interfaces.RemoteAudioSource) {
	s.mu.Lock()
	if s.closed || s.src != nil {
		s.mu.Unlock()
		return
	}
	s.src = src
	s.frames = src.Subscribe()
	s.player = s.otoCtx.NewPlayer(s)
	s.mu.Unlock()

	s.player.Play()
	go s.pump()
}

// pump drains the frame channel until the source closes it.
func (s *speakerSink) pump() {
	for frame := range s.frames {
		s.mu.Lock()
		s.buf = append(s.buf, floatToS16(frame)...)
		s.mu.Unlock()
		s.cond.Signal()
	}
	s.cond.Broadcast()
}

// Read implements io.Reader for the oto player. Returns silence once
// closed so oto drains gracefully.
func (s *speakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	src := s.src
	frames := s.frames
	player := s.player
	s.cond.Broadcast()
	s.mu.Unlock()

	if src != nil {
		src.Unsubscribe(frames)
	}
	if player != nil {
		player.Close()
	}
	return nil
}

func s16ToFloat(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		sample := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		out[i] = float32(sample) / 32768
	}
	return out
}

func floatToS16(frame []float32) []byte {
	out := make([]byte, len(frame)*2)
	for i, v := range frame {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sample := int16(v * 32767)
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}
