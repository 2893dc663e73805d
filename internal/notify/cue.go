package notify

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const cueSampleRate = 44100

type tone struct {
	freq float64
	dur  time.Duration
}

// cueTones is a short descending two-tone chime.
var cueTones = []tone{
	{freq: 880, dur: 110 * time.Millisecond},
	{freq: 660, dur: 170 * time.Millisecond},
}

// SynthesizeCue renders the chime as mono s16le PCM.
func SynthesizeCue(sampleRate int) []byte {
	var buf bytes.Buffer
	for _, t := range cueTones {
		n := int(math.Round(float64(sampleRate) * t.dur.Seconds()))
		for i := 0; i < n; i++ {
			// linear fade-out per tone
			env := 1 - float64(i)/float64(n)
			v := 0.25 * env * math.Sin(2*math.Pi*t.freq*float64(i)/float64(sampleRate))
			_ = binary.Write(&buf, binary.LittleEndian, int16(v*math.MaxInt16))
		}
	}
	return buf.Bytes()
}

// otoPlayer owns the process-wide audio context. oto allows a single
// context per process, so it is created on the first Play and reused.
type otoPlayer struct {
	once sync.Once
	ctx  *oto.Context
	err  error
}

var sharedPlayer = &otoPlayer{}

// DevicePlayer returns the process-wide audio output.
func DevicePlayer() Player {
	return sharedPlayer
}

func (p *otoPlayer) init() {
	p.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cueSampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			p.err = err
			return
		}
		<-ready
		p.ctx = ctx
	})
}

// Play blocks until the samples are drained.
func (p *otoPlayer) Play(pcm []byte) error {
	p.init()
	if p.err != nil {
		return p.err
	}
	pl := p.ctx.NewPlayer(bytes.NewReader(pcm))
	pl.Play()
	for pl.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
