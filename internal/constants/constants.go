package constants

// Key and namespace limits
const (
	// MaxKeyLength is the maximum KV key length in bytes.
	// Keys are stored on disk as uppercase hex, two characters per byte.
	MaxKeyLength = 16

	// SelectCacheEntries is the number of slots in the select result cache.
	// The cache handle's low 5 bits index the slot; the remaining bits carry
	// the slot generation, which advances by SelectCacheEntries per reuse.
	SelectCacheEntries = 32
)

// Worker pool and query engine defaults
const (
	// DefaultNumThreads is the default task worker count.
	DefaultNumThreads = 5

	// MaxNumThreads bounds KV_NUM_THREADS; values outside [1, MaxNumThreads]
	// fall back to the default.
	MaxNumThreads = 1024

	// DefaultNumDBConns is the default query engine connection pool size.
	DefaultNumDBConns = 5

	// MaxNumDBConns bounds KV_NUM_DB_CONNS.
	MaxNumDBConns = 256
)

// Environment variables consumed at bring-up
const (
	// EnvBaseDir selects the object store root; current directory if unset.
	EnvBaseDir = "KV_BASE_DIR"

	// EnvNumThreads overrides the task worker count.
	EnvNumThreads = "KV_NUM_THREADS"

	// EnvNumDBConns overrides the query connection pool size.
	EnvNumDBConns = "KV_NUM_DB_CONNS"
)
