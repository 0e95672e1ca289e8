// Package usbtmctest provides a scriptable, in-memory Transport double
// for exercising the bulk engine, the class-request state machines, and
// the USB488 operations without real hardware.
package usbtmctest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
)

// ControlCall records one control transfer issued against the mock.
type ControlCall struct {
	In           bool
	RequestType  byte
	Request      byte
	Value, Index uint16
	Data         []byte
}

// MockTransport implements interfaces.Transport entirely in memory. Bulk-in
// packets and control replies are scripted in FIFO order; bulk-out writes
// and control calls are recorded for assertions.
type MockTransport struct {
	mu sync.Mutex

	bulkInQueue [][]byte
	bulkInErr   error

	bulkOutCalls [][]byte
	bulkOutErr   error

	controlReplies map[string][][]byte
	controlCalls   []ControlCall
	controlErr     error

	clearHaltIn  int
	clearHaltOut int
	clearHaltErr error

	intrCh    chan []byte
	intrBuf   []byte
	intrKill  chan struct{}
	intrArmed bool
}

// NewMockTransport returns an empty, ready-to-script mock.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		controlReplies: make(map[string][][]byte),
		intrCh:         make(chan []byte, 16),
		intrKill:       make(chan struct{}),
	}
}

var _ interfaces.Transport = (*MockTransport)(nil)

func controlKey(requestType, request byte) string {
	return fmt.Sprintf("%d:%d", requestType&0x7F, request)
}

// QueueBulkIn appends a packet to be returned by successive BulkIn calls.
func (m *MockTransport) QueueBulkIn(packet []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), packet...)
	m.bulkInQueue = append(m.bulkInQueue, cp)
}

// QueueControlReply appends a reply body to be returned by the next
// matching ControlIn call for (requestType, request).
func (m *MockTransport) QueueControlReply(requestType, request byte, reply []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := controlKey(requestType, request)
	cp := append([]byte(nil), reply...)
	m.controlReplies[key] = append(m.controlReplies[key], cp)
}

// SetBulkInErr makes every subsequent BulkIn call fail with err.
func (m *MockTransport) SetBulkInErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkInErr = err
}

// SetBulkOutErr makes every subsequent BulkOut call fail with err.
func (m *MockTransport) SetBulkOutErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkOutErr = err
}

// BulkOutCalls returns every payload passed to BulkOut, in order.
func (m *MockTransport) BulkOutCalls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.bulkOutCalls))
	copy(out, m.bulkOutCalls)
	return out
}

// ControlCalls returns every control transfer issued, in order.
func (m *MockTransport) ControlCalls() []ControlCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ControlCall, len(m.controlCalls))
	copy(out, m.controlCalls)
	return out
}

// ClearHaltCalls reports how many times ClearHalt was called for each
// direction.
func (m *MockTransport) ClearHaltCalls() (in, out int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearHaltIn, m.clearHaltOut
}

// DeliverInterrupt pushes a packet to be returned by the next
// ReapInterruptIn call, simulating an interrupt-in URB completion.
func (m *MockTransport) DeliverInterrupt(packet []byte) {
	m.intrCh <- append([]byte(nil), packet...)
}

func (m *MockTransport) ControlIn(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controlCalls = append(m.controlCalls, ControlCall{true, requestType, request, value, index, append([]byte(nil), buf...)})
	if m.controlErr != nil {
		return 0, m.controlErr
	}
	key := controlKey(requestType, request)
	q := m.controlReplies[key]
	if len(q) == 0 {
		return 0, fmt.Errorf("usbtmctest: no scripted control reply for %s", key)
	}
	reply := q[0]
	m.controlReplies[key] = q[1:]
	n := copy(buf, reply)
	return n, nil
}

func (m *MockTransport) ControlOut(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controlCalls = append(m.controlCalls, ControlCall{false, requestType, request, value, index, append([]byte(nil), buf...)})
	if m.controlErr != nil {
		return 0, m.controlErr
	}
	return len(buf), nil
}

func (m *MockTransport) BulkOut(data []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkOutErr != nil {
		return 0, m.bulkOutErr
	}
	m.bulkOutCalls = append(m.bulkOutCalls, append([]byte(nil), data...))
	return len(data), nil
}

func (m *MockTransport) BulkIn(buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkInErr != nil {
		return 0, m.bulkInErr
	}
	if len(m.bulkInQueue) == 0 {
		return 0, errors.New("usbtmctest: no more bulk-in packets queued")
	}
	packet := m.bulkInQueue[0]
	m.bulkInQueue = m.bulkInQueue[1:]
	n := copy(buf, packet)
	return n, nil
}

func (m *MockTransport) ClearHalt(dirIn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dirIn {
		m.clearHaltIn++
	} else {
		m.clearHaltOut++
	}
	return m.clearHaltErr
}

func (m *MockTransport) SubmitInterruptIn(buf []byte) error {
	m.mu.Lock()
	m.intrBuf = buf
	m.intrArmed = true
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) ReapInterruptIn() (int, error) {
	select {
	case packet := <-m.intrCh:
		m.mu.Lock()
		buf := m.intrBuf
		m.mu.Unlock()
		n := copy(buf, packet)
		return n, nil
	case <-m.intrKill:
		return 0, errors.New("usbtmctest: interrupt-in killed")
	}
}

func (m *MockTransport) KillInterruptIn() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intrArmed {
		m.intrArmed = false
		close(m.intrKill)
		m.intrKill = make(chan struct{})
	}
	return nil
}

func (m *MockTransport) Close() error {
	return nil
}
