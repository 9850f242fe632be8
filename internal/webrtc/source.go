package webrtc

import (
	"encoding/binary"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/pion/opus"
	"github.com/pion/webrtc/v4"
)

// decodeBufferSize fits a 120ms stereo opus frame at 48kHz as s16le.
const decodeBufferSize = 11520 * 4

// RemoteSource reads the remote opus track, decodes it to mono float
// PCM, and fans frames out to subscribers. Slow subscribers lose frames
// rather than stalling the decode loop; mouth animation tolerates gaps,
// stale audio tolerates nothing.
type RemoteSource struct {
	track   *webrtc.TrackRemote
	decoder opus.Decoder

	mu   sync.Mutex
	subs map[<-chan []float32]chan []float32
	done bool
}

func newRemoteSource(track *webrtc.TrackRemote) *RemoteSource {
	return &RemoteSource{
		track:   track,
		decoder: opus.NewDecoder(),
		subs:    make(map[<-chan []float32]chan []float32),
	}
}

func (s *RemoteSource) Subscribe() <-chan []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []float32, 32)
	if s.done {
		close(ch)
		return ch
	}
	s.subs[ch] = ch
	return ch
}

func (s *RemoteSource) Unsubscribe(ch <-chan []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(sub)
	}
}

// run reads RTP until the track ends, then closes every subscriber.
func (s *RemoteSource) run() {
	defer s.finish()

	out := make([]byte, decodeBufferSize)
	for {
		packet, _, err := s.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("Remote track read ended error=%v", err)
			}
			return
		}

		if len(packet.Payload) == 0 {
			continue
		}

		_, isStereo, err := s.decoder.Decode(packet.Payload, out)
		if err != nil {
			log.Printf("Opus decode failed, dropping packet error=%v", err)
			continue
		}

		frame := pcmToFloat(out, isStereo)
		if len(frame) > 0 {
			s.broadcast(frame)
		}
	}
}

func (s *RemoteSource) broadcast(frame []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		select {
		case sub <- frame:
		default:
		}
	}
}

func (s *RemoteSource) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true
	for key, sub := range s.subs {
		delete(s.subs, key)
		close(sub)
	}
}

// pcmToFloat converts s16le PCM to mono float samples in [-1,1],
// averaging stereo pairs.
func pcmToFloat(data []byte, isStereo bool) []float32 {
	samples := len(data) / 2
	if samples == 0 {
		return nil
	}

	if isStereo {
		out := make([]float32, 0, samples/2)
		for i := 0; i+3 < len(data); i += 4 {
			l := int16(binary.LittleEndian.Uint16(data[i:]))
			r := int16(binary.LittleEndian.Uint16(data[i+2:]))
			out = append(out, (float32(l)+float32(r))/(2*32768))
		}
		return out
	}

	out := make([]float32, 0, samples)
	for i := 0; i+1 < len(data); i += 2 {
		v := int16(binary.LittleEndian.Uint16(data[i:]))
		out = append(out, float32(v)/32768)
	}
	return out
}
