//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"

	"github.com/gen2brain/malgo"

	"rtscribe/log"
)

var (
	ctxOnce sync.Once
	mctx    *malgo.AllocatedContext
	playMu  sync.Mutex
)

func play(samples []int16) {
	ctxOnce.Do(func() {
		var err error
		mctx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			log.Warnf("beep: audio context: %v", err)
		}
	})
	if mctx == nil {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate

	done := make(chan struct{})
	var once sync.Once
	pos := 0
	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			n := copy(out, pcm[pos:])
			pos += n
			clear(out[n:])
			if pos >= len(pcm) {
				once.Do(func() { close(done) })
			}
		},
	})
	if err != nil {
		log.Warnf("beep: playback device: %v", err)
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		log.Warnf("beep: start playback: %v", err)
		return
	}
	<-done
	dev.Stop()
}
