// Package controller owns the session lifecycle: negotiation, protocol
// routing, tool dispatch, audio wiring, and ordered teardown. One
// controller runs at most one session at a time.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"xiaoqiu/internal/audio"
	"xiaoqiu/internal/config"
	"xiaoqiu/internal/game"
	"xiaoqiu/internal/prompt"
	"xiaoqiu/internal/protocol"
	"xiaoqiu/internal/tools"
	"xiaoqiu/pkg/interfaces"
	"xiaoqiu/pkg/types"
)

// Hooks are the UI-facing callbacks a session drives. Nil hooks are
// skipped.
type Hooks struct {
	// DisplayCharacter renders and animates one Chinese character.
	DisplayCharacter func(character string)

	// AppendStatus appends a line to the visible session status text.
	AppendStatus func(text string)

	// OnMouth reports mouth open/close transitions for the avatar.
	OnMouth func(open bool)
}

// Deps are the collaborators a controller needs. Mic, NewSink, Memory,
// Archive and Stats may be nil; the controller degrades gracefully
// without them.
type Deps struct {
	Dialer     interfaces.TransportDialer
	Tokens     interfaces.TokenProvider
	Negotiator interfaces.Negotiator
	Memory     interfaces.MemoryStore
	Archive    interfaces.Archive
	Mic        interfaces.MicDevice

	// NewSink creates the playback sink for one session. The sink is
	// closed at session stop.
	NewSink func() (interfaces.AudioSink, error)

	// Stats is fed by the capture path and summarized into an
	// assessment record at session stop.
	Stats *audio.Collector

	Hooks Hooks
}

// Controller is the single point of truth for whether a session is
// active. All mutable session state lives behind one mutex; blocking
// operations run outside it and re-validate the session epoch before
// applying their results.
type Controller struct {
	cfg   *config.Config
	deps  Deps
	codec *protocol.EventCodec

	mu    sync.Mutex
	state types.SessionState
	// epoch identifies one start() attempt. Stale async completions
	// compare their captured epoch and discard themselves.
	epoch int

	transport interfaces.PeerTransport
	channel   interfaces.DataChannel
	micTrack  interfaces.LocalAudioTrack
	sink      interfaces.AudioSink

	monitor *audio.Monitor
	ptt     *audio.PushToTalk

	settings   *types.Settings
	userID     string
	startedAt  time.Time
	engine     *game.Engine
	registry   *tools.Registry
	transcript []types.TranscriptEntry
	partial    string

	endTimer *time.Timer
}

// NewController creates an idle controller.
func NewController(cfg *config.Config, deps Deps) *Controller {
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		codec: protocol.NewEventCodec(),
		state: types.StateIdle,
	}
}

// State returns the current session state.
func (c *Controller) State() types.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the transcript accumulated so far.
func (c *Controller) Transcript() []types.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Start negotiates a new session. The settings are validated before any
// network call; an incomplete configuration never leaves Idle. Any
// failure past validation tears the partial session down and returns a
// ConnectionError naming the failing stage.
func (c *Controller) Start(ctx context.Context, settings *types.Settings, userID string) error {
	if settings == nil {
		return ErrConfigIncomplete
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigIncomplete, err)
	}

	c.mu.Lock()
	if c.state == types.StateClosed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state != types.StateIdle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.state = types.StateNegotiating
	c.epoch++
	ep := c.epoch
	c.settings = settings
	c.userID = userID
	c.startedAt = time.Now()
	c.transcript = nil
	c.partial = ""
	mouth := c.deps.Hooks.OnMouth
	if mouth == nil {
		mouth = func(bool) {}
	}
	c.monitor = audio.NewMonitor(c.cfg.Audio.MouthThreshold, c.cfg.Audio.MouthHold, mouth)
	c.mu.Unlock()

	log.Printf("Session starting mode=%s level=%d", settings.Mode, settings.Level)

	token, err := c.deps.Tokens.FetchToken(ctx)
	if err != nil {
		return c.failStart(StageToken, err)
	}

	transport, err := c.deps.Dialer.NewTransport(ctx, token)
	if err != nil {
		return c.failStart(StageTransport, err)
	}
	if !c.adopt(ep, func() { c.transport = transport }) {
		transport.Close()
		return &ConnectionError{Stage: StageTransport, Err: ErrSessionStopped}
	}
	transport.OnConnectionState(func(state types.ConnState) { c.handleConnState(ep, state) })
	transport.OnRemoteAudio(func(src interfaces.RemoteAudioSource) { c.handleRemoteAudio(ep, src) })

	if c.deps.NewSink != nil {
		sink, err := c.deps.NewSink()
		if err != nil {
			return c.failStart(StageAudio, err)
		}
		if !c.adopt(ep, func() { c.sink = sink }) {
			sink.Close()
			return &ConnectionError{Stage: StageAudio, Err: ErrSessionStopped}
		}
	}

	if c.deps.Mic != nil {
		track, err := c.deps.Mic.Capture(ctx)
		if err != nil {
			return c.failStart(StageMicrophone, err)
		}
		// Push-to-talk is opt-in; the track starts muted.
		track.SetEnabled(false)
		if !c.adopt(ep, func() {
			c.micTrack = track
			c.ptt = audio.NewPushToTalk(track, c.cfg.Audio.ReleaseHold)
		}) {
			track.Close()
			return &ConnectionError{Stage: StageMicrophone, Err: ErrSessionStopped}
		}
		if err := transport.AddLocalAudio(track); err != nil {
			return c.failStart(StageMicrophone, err)
		}
	}

	channel, err := transport.CreateDataChannel(c.cfg.Transport.ChannelLabel)
	if err != nil {
		return c.failStart(StageChannel, err)
	}
	if !c.adopt(ep, func() { c.channel = channel }) {
		channel.Close()
		return &ConnectionError{Stage: StageChannel, Err: ErrSessionStopped}
	}
	channel.OnOpen(func() { go c.handleChannelOpen(ep) })
	channel.OnMessage(func(data []byte) { c.handleMessage(ep, data) })
	channel.OnError(func(err error) { c.handleChannelError(ep, err) })
	channel.OnClose(func() { c.handleChannelClose(ep) })

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		return c.failStart(StageOffer, err)
	}
	// The channel may already be open (transports with no signaling
	// exchange open it during CreateOffer); never regress from Open.
	if !c.adopt(ep, func() {
		if c.state == types.StateNegotiating {
			c.state = types.StateAwaitingAnswer
		}
	}) {
		return &ConnectionError{Stage: StageOffer, Err: ErrSessionStopped}
	}

	// Transports that need no signaling exchange return an empty offer.
	if offer != "" {
		answer, err := c.deps.Negotiator.Exchange(ctx, offer, token)
		if err != nil {
			return c.failStart(StageNegotiate, err)
		}
		if !c.adopt(ep, func() {}) {
			return &ConnectionError{Stage: StageNegotiate, Err: ErrSessionStopped}
		}
		if err := transport.ApplyAnswer(answer); err != nil {
			return c.failStart(StageAnswer, err)
		}
	}

	return nil
}

// adopt applies a state mutation only while the start attempt identified
// by ep is still live.
func (c *Controller) adopt(ep int, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep {
		return false
	}
	switch c.state {
	case types.StateNegotiating, types.StateAwaitingAnswer, types.StateOpen:
		apply()
		return true
	default:
		return false
	}
}

func (c *Controller) failStart(stage string, err error) error {
	log.Printf("Session start failed stage=%s error=%v", stage, err)
	c.appendStatus(fmt.Sprintf("Connection failed: %s", stage))
	c.Stop(false)
	return &ConnectionError{Stage: stage, Err: err}
}

// handleChannelOpen configures the remote session and sends the initial
// prompt. Runs on its own goroutine since it sleeps between the two.
func (c *Controller) handleChannelOpen(ep int) {
	c.mu.Lock()
	if c.epoch != ep || (c.state != types.StateNegotiating && c.state != types.StateAwaitingAnswer) {
		c.mu.Unlock()
		return
	}
	c.state = types.StateOpen
	settings := c.settings
	userID := c.userID
	if settings.RequiresProgression() {
		c.engine = game.NewEngine(settings.Phrases)
	}
	c.registry = tools.NewRegistry(settings, c.engine, tools.Hooks{
		DisplayCharacter: c.deps.Hooks.DisplayCharacter,
		AppendStatus:     c.deps.Hooks.AppendStatus,
		ScheduleEnd:      c.scheduleEnd,
	})
	registry := c.registry
	c.mu.Unlock()

	log.Printf("Data channel open, configuring session mode=%s", settings.Mode)
	c.appendStatus("Connected.")

	c.sendClientEvent(protocol.NewSessionUpdate(&protocol.SessionPayload{
		Modalities:       []string{"text", "audio"},
		InputTranscriber: &protocol.TranscriberConfig{Model: "whisper-1"},
		Tools:            registry.Definitions(),
		ToolChoice:       "auto",
	}))

	// Let the configuration land before the opening prompt.
	time.Sleep(c.cfg.Session.PromptDelay)
	if !c.live(ep) {
		return
	}

	memory := ""
	if settings.Mode == types.ModeTalk && userID != "" && c.deps.Memory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Provider.RequestTimeout)
		stored, err := c.deps.Memory.Fetch(ctx, userID)
		cancel()
		if err != nil {
			log.Printf("Memory fetch failed, starting without context user=%s error=%v", userID, err)
		} else {
			memory = stored
		}
		if err == nil && stored == "" {
			// New learner; seed the memory store so later sessions
			// find a record. Best effort.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Provider.RequestTimeout)
				defer cancel()
				seed := []types.TranscriptEntry{{Role: "assistant", Content: "New learner, first session."}}
				if err := c.deps.Memory.Store(ctx, userID, seed); err != nil {
					log.Printf("Initial memory record failed user=%s error=%v", userID, err)
				}
			}()
		}
	}

	text, err := prompt.Build(settings, memory)
	if err != nil {
		log.Printf("Prompt generation failed error=%v", err)
		c.appendStatus(err.Error())
		c.Stop(false)
		return
	}
	if !c.live(ep) {
		return
	}

	c.sendClientEvent(protocol.NewUserText(text))
	c.sendClientEvent(protocol.NewResponseCreate())
}

func (c *Controller) live(ep int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == ep && c.state == types.StateOpen
}

// handleMessage routes one inbound protocol event. Unparseable payloads
// are logged and dropped.
func (c *Controller) handleMessage(ep int, data []byte) {
	event, err := c.codec.Decode(data)
	if err != nil {
		log.Printf("Dropping malformed inbound event error=%v", err)
		return
	}

	switch ev := event.(type) {
	case protocol.TranscriptDeltaEvent:
		c.withSession(ep, func() { c.partial += ev.Delta })

	case protocol.ItemCreatedEvent:
		if ev.Role == "assistant" {
			c.withSession(ep, func() { c.partial = "" })
		}

	case protocol.FunctionCallEvent:
		c.handleFunctionCall(ep, ev)

	case protocol.ResponseDoneEvent:
		c.withSession(ep, func() {
			text := ev.Transcript
			if text == "" {
				text = c.partial
			}
			if strings.TrimSpace(text) != "" {
				c.transcript = append(c.transcript, types.TranscriptEntry{Role: "assistant", Content: text})
			}
			c.partial = ""
		})

	case protocol.InputTranscriptionEvent:
		if strings.TrimSpace(ev.Transcript) != "" {
			c.withSession(ep, func() {
				c.transcript = append(c.transcript, types.TranscriptEntry{Role: "user", Content: ev.Transcript})
			})
		}

	case protocol.SessionEndedEvent:
		log.Printf("Remote ended the session reason=%s", ev.Reason)
		c.Stop(false)

	case protocol.ServerErrorEvent:
		log.Printf("Remote session error type=%s message=%s", ev.Type, ev.Message)
		c.appendStatus(fmt.Sprintf("Session error: %s", ev.Message))
		c.Stop(false)

	case protocol.UnknownEvent:
		log.Printf("Ignoring unhandled event type=%s", ev.Type)
	}
}

// handleFunctionCall dispatches one tool call and answers it. The
// function output is always sent before the response trigger.
func (c *Controller) handleFunctionCall(ep int, ev protocol.FunctionCallEvent) {
	c.mu.Lock()
	if c.epoch != ep || c.state != types.StateOpen || c.registry == nil {
		c.mu.Unlock()
		return
	}
	registry := c.registry
	c.mu.Unlock()

	log.Printf("Tool call name=%s call_id=%s", ev.Name, ev.CallID)
	result := registry.Dispatch(ev.Name, ev.Arguments)

	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("Tool result marshal failed name=%s error=%v", ev.Name, err)
		payload = []byte(`{"success":false,"message":"internal result encoding error"}`)
	}

	c.sendClientEvent(protocol.NewFunctionOutput(ev.CallID, string(payload)))
	c.sendClientEvent(protocol.NewResponseCreate())
}

func (c *Controller) withSession(ep int, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != ep || c.state != types.StateOpen {
		return
	}
	fn()
}

func (c *Controller) handleChannelError(ep int, err error) {
	c.mu.Lock()
	stale := c.epoch != ep
	c.mu.Unlock()
	if stale {
		return
	}
	log.Printf("Data channel error, ending session error=%v", err)
	c.Stop(false)
}

// handleChannelClose logs only. The connection-state monitor is the
// authority for disconnect detection; stopping here too would race it.
func (c *Controller) handleChannelClose(ep int) {
	c.mu.Lock()
	stale := c.epoch != ep
	c.mu.Unlock()
	if stale {
		return
	}
	log.Printf("Data channel closed")
}

func (c *Controller) handleConnState(ep int, state types.ConnState) {
	c.mu.Lock()
	stale := c.epoch != ep
	c.mu.Unlock()
	if stale {
		return
	}
	log.Printf("Connection state changed state=%s", state)
	if state.Fatal() {
		c.appendStatus("Connection lost.")
		c.Stop(false)
	}
}

func (c *Controller) handleRemoteAudio(ep int, src interfaces.RemoteAudioSource) {
	var monitor *audio.Monitor
	var sink interfaces.AudioSink
	if !c.adopt(ep, func() {
		monitor = c.monitor
		sink = c.sink
	}) {
		return
	}

	log.Printf("Remote audio stream attached")
	if monitor != nil {
		monitor.Start(src)
	}
	if sink != nil {
		sink.Play(src)
	}
}

// SendUserText sends learner text as a user message and triggers a
// response. Empty text and a closed channel are warned and dropped.
func (c *Controller) SendUserText(text string) {
	if strings.TrimSpace(text) == "" {
		log.Printf("Dropping empty user text")
		return
	}
	c.mu.Lock()
	open := c.state == types.StateOpen && c.channel != nil && c.channel.IsOpen()
	c.mu.Unlock()
	if !open {
		log.Printf("Dropping user text, channel not open")
		return
	}

	c.sendClientEvent(protocol.NewUserText(text))
	c.sendClientEvent(protocol.NewResponseCreate())
}

// sendClientEvent is the sole outbound write path. Events sent while
// the channel is not open are warned and dropped.
func (c *Controller) sendClientEvent(event *protocol.ClientEvent) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if channel == nil || !channel.IsOpen() {
		log.Printf("Dropping outbound event, channel not open type=%s", event.Type)
		return
	}

	data, err := c.codec.Encode(event)
	if err != nil {
		log.Printf("Outbound event encoding failed type=%s error=%v", event.Type, err)
		return
	}
	if err := channel.Send(data); err != nil {
		log.Printf("Outbound event send failed type=%s error=%v", event.Type, err)
	}
}

// PressTalk enables the microphone immediately.
func (c *Controller) PressTalk() {
	c.mu.Lock()
	ptt := c.ptt
	c.mu.Unlock()
	if ptt != nil {
		ptt.Press()
	}
}

// ReleaseTalk schedules the microphone disable after the release hold.
func (c *Controller) ReleaseTalk() {
	c.mu.Lock()
	ptt := c.ptt
	c.mu.Unlock()
	if ptt != nil {
		ptt.Release()
	}
}

// scheduleEnd stops the session after the end delay, giving the closing
// message time to land. A pending end timer is replaced.
func (c *Controller) scheduleEnd(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateOpen {
		return
	}
	if c.endTimer != nil {
		c.endTimer.Stop()
	}
	c.endTimer = time.AfterFunc(c.cfg.Session.EndDelay, func() { c.Stop(false) })
}

// Stop tears the session down in a fixed order: timers, audio analysis,
// data channel, microphone, transport, sink. It is idempotent and safe
// to call from handlers that Stop itself triggers. Teardown errors are
// logged, never propagated.
func (c *Controller) Stop(isRestarting bool) {
	c.mu.Lock()
	// Closed is terminal; a restart must not resurrect the controller.
	if c.state == types.StateClosing || c.state == types.StateClosed {
		c.mu.Unlock()
		return
	}
	if c.state == types.StateIdle && !isRestarting {
		c.mu.Unlock()
		return
	}
	prior := c.state
	c.state = types.StateClosing
	c.epoch++

	endTimer := c.endTimer
	monitor := c.monitor
	ptt := c.ptt
	channel := c.channel
	micTrack := c.micTrack
	transport := c.transport
	sink := c.sink
	settings := c.settings
	userID := c.userID
	startedAt := c.startedAt
	transcript := c.transcript

	c.endTimer = nil
	c.monitor = nil
	c.ptt = nil
	c.channel = nil
	c.micTrack = nil
	c.transport = nil
	c.sink = nil
	c.settings = nil
	c.userID = ""
	c.engine = nil
	c.registry = nil
	c.transcript = nil
	c.partial = ""
	c.mu.Unlock()

	if prior != types.StateIdle {
		log.Printf("Session stopping prior_state=%s restarting=%v", prior, isRestarting)
	}

	if endTimer != nil {
		endTimer.Stop()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if ptt != nil {
		ptt.Close()
	}
	if channel != nil {
		if err := channel.Close(); err != nil {
			log.Printf("Data channel close failed error=%v", err)
		}
	}
	if micTrack != nil {
		if err := micTrack.Close(); err != nil {
			log.Printf("Microphone track close failed error=%v", err)
		}
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			log.Printf("Transport close failed error=%v", err)
		}
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Printf("Audio sink close failed error=%v", err)
		}
	}

	if settings != nil {
		c.flush(settings, userID, startedAt, transcript)
	}

	c.mu.Lock()
	c.state = types.StateIdle
	c.mu.Unlock()
}

// Close shuts the controller down for good. Further Start calls fail.
func (c *Controller) Close() {
	c.Stop(false)
	c.mu.Lock()
	c.state = types.StateClosed
	c.mu.Unlock()
}

// flush persists the finished session: a best-effort async memory write
// plus local archive records. Failures are logged, never retried.
func (c *Controller) flush(settings *types.Settings, userID string, startedAt time.Time, transcript []types.TranscriptEntry) {
	endedAt := time.Now()

	if c.deps.Memory != nil && userID != "" && len(transcript) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Provider.RequestTimeout)
			defer cancel()
			if err := c.deps.Memory.Store(ctx, userID, transcript); err != nil {
				log.Printf("Memory flush failed user=%s error=%v", userID, err)
			}
		}()
	}

	if c.deps.Archive == nil {
		return
	}

	if len(transcript) > 0 {
		rec := &types.ConversationRecord{
			ID:         uuid.New().String(),
			UserID:     userID,
			Mode:       settings.Mode,
			StartedAt:  startedAt,
			EndedAt:    endedAt,
			Transcript: transcript,
		}
		if err := c.deps.Archive.SaveConversation(rec); err != nil {
			log.Printf("Conversation archive failed id=%s error=%v", rec.ID, err)
		}
	}

	if c.deps.Stats != nil {
		stats := c.deps.Stats.Analyze()
		if stats.SpeakingSecs > 0 {
			rec := &types.AssessmentRecord{
				ID:           uuid.New().String(),
				UserID:       userID,
				CreatedAt:    endedAt,
				SpeakingSecs: stats.SpeakingSecs,
				SilenceSecs:  stats.SilenceSecs,
				WordEstimate: stats.WordEstimate,
				WordsPerSec:  stats.WordsPerSec,
			}
			if err := c.deps.Archive.SaveAssessment(rec); err != nil {
				log.Printf("Assessment archive failed id=%s error=%v", rec.ID, err)
			}
		}
	}
}

func (c *Controller) appendStatus(text string) {
	if c.deps.Hooks.AppendStatus != nil {
		c.deps.Hooks.AppendStatus(text)
	}
}
