package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/go-usbtmc/usbtmctest"
)

func TestDispatcherRoutesSTBNotification(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	var mu sync.Mutex
	var gotTag, gotVal byte
	done := make(chan struct{}, 1)

	d := &Dispatcher{
		Transport: mt,
		BufSize:   8,
		OnSTBNotify: func(tag, value byte) {
			mu.Lock()
			gotTag, gotVal = tag, value
			mu.Unlock()
			done <- struct{}{}
		},
	}
	d.Start(context.Background())
	defer d.Stop()

	mt.DeliverInterrupt([]byte{0x82, 0x40}) // leading byte > 0x81: tag 2, value 0x40

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnSTBNotify")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, byte(2), gotTag)
	assert.Equal(t, byte(0x40), gotVal)
}

func TestDispatcherRoutesSRQNotification(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	var mu sync.Mutex
	var gotVal byte
	done := make(chan struct{}, 1)

	d := &Dispatcher{
		Transport: mt,
		BufSize:   8,
		OnSRQ: func(value byte) {
			mu.Lock()
			gotVal = value
			mu.Unlock()
			done <- struct{}{}
		},
	}
	d.Start(context.Background())
	defer d.Stop()

	mt.DeliverInterrupt([]byte{0x81, 0x50})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnSRQ")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, byte(0x50), gotVal)
}

func TestDispatcherLogsUnknownLeadingByte(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	done := make(chan byte, 1)

	d := &Dispatcher{
		Transport: mt,
		BufSize:   8,
		OnUnknown: func(lead byte) { done <- lead },
	}
	d.Start(context.Background())
	defer d.Stop()

	mt.DeliverInterrupt([]byte{0x01, 0x00})

	select {
	case lead := <-done:
		assert.Equal(t, byte(0x01), lead)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnUnknown")
	}
}

func TestDispatcherStopKillsInterruptURB(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	d := &Dispatcher{Transport: mt, BufSize: 8}
	d.Start(context.Background())

	time.Sleep(10 * time.Millisecond)
	d.Stop() // should not hang even with no notifications ever delivered
}
