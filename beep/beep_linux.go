//go:build linux

package beep

import (
	"github.com/jfreymuth/pulse"

	"rtscribe/log"
)

func play(samples []int16) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("rtscribe"))
	if err != nil {
		log.Warnf("beep: pulse client: %v", err)
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
	)
	if err != nil {
		log.Warnf("beep: playback: %v", err)
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
}
