package acquisition

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	demoDriverName = "demo"
	demoDeviceID   = "demo0"
	demoToneHz     = 440.0
)

// DemoDriver provides a synthetic tone generator that needs no hardware.
type DemoDriver struct {
	interval time.Duration
}

// NewDemoDriver returns a demo driver emitting one chunk every 20ms.
func NewDemoDriver() *DemoDriver {
	return &DemoDriver{interval: 20 * time.Millisecond}
}

func (d *DemoDriver) Name() string     { return demoDriverName }
func (d *DemoDriver) LongName() string { return "Demo signal generator" }

func (d *DemoDriver) Scan(_ context.Context, _ map[string]string) ([]Device, error) {
	return []Device{{
		Driver:      demoDriverName,
		ID:          demoDeviceID,
		Description: "Demo signal generator",
		State:       "idle",
		Available:   true,
	}}, nil
}

func (d *DemoDriver) StartCapture(ctx context.Context, device Device) (Capture, error) {
	if device.ID != demoDeviceID {
		return nil, fmt.Errorf("demo driver has no device %q", device.ID)
	}
	c := &demoCapture{
		device: device,
		chunks: make(chan []byte, 16),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.generate(ctx, d.interval)
	return c, nil
}

type demoCapture struct {
	device Device
	chunks chan []byte
	stopCh chan struct{}
	done   chan struct{}

	stopOnce sync.Once
	bytes    atomic.Int64
}

func (c *demoCapture) Device() Device        { return c.device }
func (c *demoCapture) Chunks() <-chan []byte { return c.chunks }
func (c *demoCapture) BytesCaptured() int64  { return c.bytes.Load() }

func (c *demoCapture) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
	return nil
}

func (c *demoCapture) generate(ctx context.Context, interval time.Duration) {
	defer close(c.done)
	defer close(c.chunks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sample int
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
		}

		chunk := make([]byte, chunkSizeBytes)
		for i := 0; i < chunkSizeBytes; i += 2 {
			v := math.Sin(2 * math.Pi * demoToneHz * float64(sample) / pulseSampleRate)
			binary.LittleEndian.PutUint16(chunk[i:], uint16(int16(v*math.MaxInt16/2)))
			sample++
		}

		select {
		case c.chunks <- chunk:
			c.bytes.Add(int64(len(chunk)))
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		}
	}
}
