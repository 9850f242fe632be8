package audio

import (
	"math"
	"sync"
)

const (
	// speechThreshold is the absolute amplitude above which a sample
	// counts as speech.
	speechThreshold = 0.01

	// minBreakSeconds is the shortest silence that separates two phrases.
	minBreakSeconds = 0.7

	// secondsPerWord is the rough length of one spoken word used for the
	// word-count estimate.
	secondsPerWord = 0.5

	// maxCollectedSeconds caps retained audio so long sessions do not
	// grow without bound.
	maxCollectedSeconds = 600
)

// Stats summarizes the learner's speaking activity over one session.
type Stats struct {
	SpeakingSecs float64
	SilenceSecs  float64
	Phrases      int
	WordEstimate int
	WordsPerSec  float64
}

// Collector accumulates learner microphone audio for end-of-session
// analysis. Frames arrive from the capture path; Analyze runs once at
// teardown.
type Collector struct {
	sampleRate int

	mu      sync.Mutex
	samples []float32
}

func NewCollector(sampleRate int) *Collector {
	return &Collector{sampleRate: sampleRate}
}

// Add appends one frame. Oldest audio is dropped past the retention cap.
func (c *Collector) Add(frame []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, frame...)

	max := maxCollectedSeconds * c.sampleRate
	if len(c.samples) > max {
		c.samples = c.samples[len(c.samples)-max:]
	}
}

// Analyze computes speaking statistics over the collected audio.
func (c *Collector) Analyze() Stats {
	c.mu.Lock()
	samples := c.samples
	c.mu.Unlock()

	return AnalyzeSamples(samples, c.sampleRate)
}

// AnalyzeSamples segments speech by amplitude threshold, groups segments
// into phrases separated by long breaks, and estimates the word count
// from phrase durations.
func AnalyzeSamples(samples []float32, sampleRate int) Stats {
	if sampleRate <= 0 || len(samples) == 0 {
		return Stats{}
	}

	totalSecs := float64(len(samples)) / float64(sampleRate)

	// Contiguous runs of loud samples.
	type segment struct{ start, end int }
	var segments []segment
	i := 0
	for i < len(samples) {
		if math.Abs(float64(samples[i])) > speechThreshold {
			start := i
			for i < len(samples) && math.Abs(float64(samples[i])) > speechThreshold {
				i++
			}
			segments = append(segments, segment{start, i})
		} else {
			i++
		}
	}

	if len(segments) == 0 {
		return Stats{SilenceSecs: totalSecs}
	}

	var speakingSamples int
	for _, seg := range segments {
		speakingSamples += seg.end - seg.start
	}
	speakingSecs := float64(speakingSamples) / float64(sampleRate)

	// Merge segments into phrases separated by breaks of at least
	// minBreakSeconds.
	minBreak := int(minBreakSeconds * float64(sampleRate))
	var phrases []segment
	phraseStart := -1
	for idx, seg := range segments {
		if phraseStart < 0 {
			phraseStart = seg.start
		}
		if idx+1 < len(segments) {
			if segments[idx+1].start-seg.end >= minBreak {
				phrases = append(phrases, segment{phraseStart, seg.end})
				phraseStart = -1
			}
		} else {
			phrases = append(phrases, segment{phraseStart, seg.end})
		}
	}

	var words int
	for _, p := range phrases {
		secs := float64(p.end-p.start) / float64(sampleRate)
		est := int(math.Round(secs / secondsPerWord))
		if est < 1 {
			est = 1
		}
		words += est
	}

	return Stats{
		SpeakingSecs: speakingSecs,
		SilenceSecs:  totalSecs - speakingSecs,
		Phrases:      len(phrases),
		WordEstimate: words,
		WordsPerSec:  float64(words) / totalSecs,
	}
}
