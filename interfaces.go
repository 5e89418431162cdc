package nvmekv

import "github.com/airmettle/go-nvme-kv/internal/interfaces"

// PayloadHandle exposes the host DMA region mapped for one command. The
// surrounding controller supplies an implementation per request; the core
// only copies through it and never retains it past completion.
type PayloadHandle = interfaces.PayloadHandle

// Logger is the optional logging interface threaded through the runtime.
type Logger = interfaces.Logger

// Observer receives per-operation measurements from the worker pool.
type Observer = interfaces.Observer

// MapPayloadFunc maps the command's data pointer for length bytes and
// returns the handle plus an NVMe status (StatusSuccess on success). It is
// called on the command thread before a task is admitted.
type MapPayloadFunc func(req *Request, length uint32) (PayloadHandle, uint16)

// CompleteFunc posts an NVMe completion for a request whose admission
// returned "no completion yet". Called only from the completion loop.
type CompleteFunc func(req *Request, status uint16, result uint32)
