package conn

import "time"

// Options are the per-connection tunables (max file size is fixed by
// rmf, but fragmentation budget, message ceiling, handshake timeout
// and the allocator's reclamation queue depth are all connection-level
// knobs). Populated via functional options.
type Options struct {
	// FragmentSize bounds how many payload bytes WriteLocalFile puts in
	// a single frame before splitting into a fragmented (more=true) run.
	FragmentSize int
	// MaxMessageSize bounds the file-manager receiver's reassembly
	// buffer (BUFFER_FULL).
	MaxMessageSize int
	// HandshakeTimeout is stored in Options only; Run does not read it,
	// and the greeting/FILE_INFO/EOT exchange runs without a deadline.
	HandshakeTimeout time.Duration
	// QueueDepth bounds the allocator's reclamation ring buffer.
	QueueDepth int
}

func defaultOptions() Options {
	return Options{
		FragmentSize:     4096,
		MaxMessageSize:   1 << 20,
		HandshakeTimeout: 5 * time.Second,
		QueueDepth:       256,
	}
}

// Option configures a Connection at construction.
type Option func(*Options)

func WithFragmentSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.FragmentSize = n
		}
	}
}

func WithMaxMessageSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxMessageSize = n
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.HandshakeTimeout = d
		}
	}
}

func WithQueueDepth(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueDepth = n
		}
	}
}
