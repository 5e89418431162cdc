// Package interfaces provides internal interface definitions for go-nvme-kv.
// These are separate from the public interfaces to avoid circular imports
// between the main package and internal packages.
package interfaces

// PayloadHandle exposes the host DMA region mapped for one command.
// Implementations copy through scatter/gather lists or virtual buffers;
// both directions return the bytes actually transferred. Short transfers
// are not errors at this layer.
type PayloadHandle interface {
	ReadFromHost(p []byte) (n int, err error)
	WriteToHost(p []byte) (n int, err error)
}

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for metrics collection.
// Implementations must be thread-safe as methods are called from worker
// threads and, for queue depth, from the submitting thread.
type Observer interface {
	ObserveStore(bytes uint64, latencyNs uint64, success bool)
	ObserveRetrieve(bytes uint64, latencyNs uint64, success bool)
	ObserveDelete(latencyNs uint64, success bool)
	ObserveExist(latencyNs uint64, success bool)
	ObserveList(keys uint64, latencyNs uint64, success bool)
	ObserveSelect(bytes uint64, latencyNs uint64, success bool)
	ObserveQueueDepth(depth uint32)
}
