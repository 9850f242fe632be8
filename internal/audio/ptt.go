package audio

import (
	"log"
	"sync"
	"time"

	"xiaoqiu/pkg/interfaces"
)

// PushToTalk gates the microphone track. The track starts disabled;
// pressing enables it immediately, releasing disables it after a short
// hold so the tail of the utterance is not clipped. A press during the
// hold cancels the pending disable.
type PushToTalk struct {
	track interfaces.LocalAudioTrack
	hold  time.Duration

	mu           sync.Mutex
	pressed      bool
	releaseTimer *time.Timer
}

func NewPushToTalk(track interfaces.LocalAudioTrack, hold time.Duration) *PushToTalk {
	return &PushToTalk{track: track, hold: hold}
}

// Press opens the microphone. Repeated presses are no-ops.
func (p *PushToTalk) Press() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.releaseTimer != nil {
		p.releaseTimer.Stop()
		p.releaseTimer = nil
	}

	if p.pressed {
		return
	}
	p.pressed = true

	log.Printf("Push-to-talk pressed, enabling microphone")
	p.track.SetEnabled(true)
}

// Release schedules the microphone to close after the hold period.
func (p *PushToTalk) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pressed {
		return
	}
	p.pressed = false

	if p.releaseTimer != nil {
		p.releaseTimer.Stop()
	}
	p.releaseTimer = time.AfterFunc(p.hold, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		// A press may have landed while the timer was pending.
		if p.pressed {
			return
		}
		log.Printf("Push-to-talk hold expired, disabling microphone")
		p.track.SetEnabled(false)
	})
}

// Pressed reports whether the talk button is currently held.
func (p *PushToTalk) Pressed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressed
}

// Close cancels any pending release and disables the microphone.
func (p *PushToTalk) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.releaseTimer != nil {
		p.releaseTimer.Stop()
		p.releaseTimer = nil
	}
	p.pressed = false
	p.track.SetEnabled(false)
}
