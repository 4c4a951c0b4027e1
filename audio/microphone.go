package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied means the microphone could not be opened for capture:
// access refused, device missing, or device busy.
var ErrPermissionDenied = errors.New("microphone access denied")

// Microphone grants access to a running capture stream. Open may block until
// the platform settles the request; the returned device is already started
// and has no callback attached.
type Microphone interface {
	Open(ctx context.Context) (CaptureDevice, error)
}

// DeviceMicrophone opens capture streams from an audio Context. Device nil
// means the system default source.
type DeviceMicrophone struct {
	Ctx    Context
	Device *DeviceInfo
	Config CaptureConfig
}

func NewMicrophone(ctx Context, device *DeviceInfo) *DeviceMicrophone {
	return &DeviceMicrophone{Ctx: ctx, Device: device, Config: DefaultCaptureConfig()}
}

func (m *DeviceMicrophone) Open(ctx context.Context) (CaptureDevice, error) {
	type opened struct {
		dev CaptureDevice
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		dev, err := m.Ctx.NewCapture(m.Device, m.Config)
		if err == nil {
			if err = dev.Start(); err != nil {
				dev.Close()
				dev = nil
			}
		}
		ch <- opened{dev, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, o.err)
		}
		return o.dev, nil
	case <-ctx.Done():
		// release the device if the platform answers after we gave up
		go func() {
			if o := <-ch; o.dev != nil {
				o.dev.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, ctx.Err())
	}
}
