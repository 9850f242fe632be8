// Package audio holds the audio-level machinery around a session: the
// mouth-animation monitor driven by remote speech, push-to-talk gating of
// the microphone, and end-of-session speech statistics.
package audio

import (
	"log"
	"math"
	"sync"
	"time"

	"xiaoqiu/pkg/interfaces"
)

// lowBandShare is the slice of the spectrum that drives the mouth. Speech
// energy concentrates in the low bins.
const lowBandShare = 0.3

// Monitor watches decoded remote audio and reports mouth open/close
// transitions. The mouth opens the moment low-band energy crosses the
// threshold and closes after a hold period with no loud frames, so brief
// pauses inside a sentence do not flap the mouth.
//
// The callback runs off the monitor's goroutine or its timer; callers
// synchronize their own state. Stop always fires a final close when the
// mouth is open.
type Monitor struct {
	threshold float64
	hold      time.Duration
	onMouth   func(open bool)

	mu    sync.Mutex
	open  bool
	timer *time.Timer

	src     interfaces.RemoteAudioSource
	frames  <-chan []float32
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

func NewMonitor(threshold float64, hold time.Duration, onMouth func(open bool)) *Monitor {
	return &Monitor{
		threshold: threshold,
		hold:      hold,
		onMouth:   onMouth,
	}
}

// Start subscribes to the source and begins watching. Starting twice is
// an error in the caller; the second call is ignored.
func (m *Monitor) Start(src interfaces.RemoteAudioSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		log.Printf("Monitor already started, ignoring")
		return
	}
	m.started = true
	m.src = src
	m.frames = src.Subscribe()
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(m.frames, m.stopCh, m.doneCh)
}

func (m *Monitor) run(frames <-chan []float32, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if LowBandLevel(frame) > m.threshold {
				m.loudFrame()
			}
		}
	}
}

// loudFrame opens the mouth if closed and re-arms the close timer.
func (m *Monitor) loudFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	if !m.open {
		m.open = true
		m.onMouth(true)
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.hold, m.holdExpired)
}

func (m *Monitor) holdExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		m.open = false
		m.onMouth(false)
	}
}

// Stop halts the watcher, unsubscribes, and closes the mouth if it was
// left open. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	stopCh := m.stopCh
	doneCh := m.doneCh
	src := m.src
	frames := m.frames

	finalClose := m.open
	m.open = false
	m.mu.Unlock()

	close(stopCh)
	<-doneCh

	if src != nil {
		src.Unsubscribe(frames)
	}

	if finalClose {
		m.onMouth(false)
	}
}

// LowBandLevel returns the average spectral magnitude of the low 30% of
// bins for one mono PCM frame in [-1,1]. Computed as a direct DFT over
// just those bins; frames are small so this stays cheap.
func LowBandLevel(frame []float32) float64 {
	n := len(frame)
	if n == 0 {
		return 0
	}

	bins := n / 2
	lowBins := int(float64(bins) * lowBandShare)
	if lowBins < 1 {
		lowBins = 1
	}

	var sum float64
	for k := 1; k <= lowBins; k++ {
		var re, im float64
		w := 2 * math.Pi * float64(k) / float64(n)
		for i, s := range frame {
			re += float64(s) * math.Cos(w*float64(i))
			im -= float64(s) * math.Sin(w*float64(i))
		}
		sum += math.Sqrt(re*re+im*im) / float64(n)
	}

	return sum / float64(lowBins)
}
