package nvmekv

import (
	"sync"
	"time"

	"github.com/airmettle/go-nvme-kv/internal/uapi"
)

// This file provides host-side stand-ins for the external collaborators:
// an in-memory DMA buffer and a completion recorder. They back the package
// tests and the CLI, and give embedders a reference for wiring a real
// controller.

// HostBuffer is an in-memory PayloadHandle. Like the scatter/gather walk it
// stands in for, every transfer starts at the beginning of the region and
// short transfers are reported through the returned count, never as errors.
type HostBuffer struct {
	Data []byte
}

// NewHostBuffer creates a zeroed host region of the given size.
func NewHostBuffer(size int) *HostBuffer {
	return &HostBuffer{Data: make([]byte, size)}
}

// ReadFromHost copies host bytes into p.
func (h *HostBuffer) ReadFromHost(p []byte) (int, error) {
	return copy(p, h.Data), nil
}

// WriteToHost copies p into the host region, truncating to its size.
func (h *HostBuffer) WriteToHost(p []byte) (int, error) {
	return copy(h.Data, p), nil
}

// HostBufferMap implements MapPayloadFunc over per-request HostBuffers.
// Buffers can be registered up front (command input payloads) or allocated
// on demand at map time (command output payloads) and looked up after the
// completion fires.
type HostBufferMap struct {
	mu      sync.Mutex
	buffers map[*Request]*HostBuffer
}

// NewHostBufferMap creates an empty registry.
func NewHostBufferMap() *HostBufferMap {
	return &HostBufferMap{buffers: make(map[*Request]*HostBuffer)}
}

// Register associates a host buffer with a request before dispatch.
func (m *HostBufferMap) Register(req *Request, buf *HostBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers[req] = buf
}

// Lookup returns the buffer serving a request, or nil.
func (m *HostBufferMap) Lookup(req *Request) *HostBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers[req]
}

// Map implements MapPayloadFunc.
func (m *HostBufferMap) Map(req *Request, length uint32) (PayloadHandle, uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok := m.buffers[req]; ok {
		return buf, uapi.StatusSuccess
	}
	buf := NewHostBuffer(int(length))
	m.buffers[req] = buf
	return buf, uapi.StatusSuccess
}

// Completion is one recorded completion queue entry.
type Completion struct {
	Req    *Request
	Status uint16
	Result uint32
}

// CompletionRecorder implements CompleteFunc and hands completions back to
// the submitting thread.
type CompletionRecorder struct {
	ch chan Completion
}

// NewCompletionRecorder creates a recorder with room for outstanding
// completions.
func NewCompletionRecorder() *CompletionRecorder {
	return &CompletionRecorder{ch: make(chan Completion, 128)}
}

// Complete implements CompleteFunc.
func (r *CompletionRecorder) Complete(req *Request, status uint16, result uint32) {
	r.ch <- Completion{Req: req, Status: status, Result: result}
}

// Wait blocks for the next completion or gives up after the timeout.
func (r *CompletionRecorder) Wait(timeout time.Duration) (Completion, bool) {
	select {
	case c := <-r.ch:
		return c, true
	case <-time.After(timeout):
		return Completion{}, false
	}
}
