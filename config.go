package rudp

import (
	"time"

	"go.uber.org/zap"
)

// Default configuration values
const (
	DEFAULT_MTU                       = 1450
	DEFAULT_FRAGMENT_SIZE             = DEFAULT_MTU - MAX_PACKET_OVERHEAD
	DEFAULT_IDLE_TIMEOUT              = 5 * time.Second
	DEFAULT_FRAGMENT_REASSEMBLY_LIMIT = 5 * time.Second
	DEFAULT_MAX_PACKETS_IN_FLIGHT     = 512
	DEFAULT_RECEIVE_BUFFER_SIZE       = 1500
	DEFAULT_RTT_SMOOTHING_FACTOR      = 0.10
	DEFAULT_RTT_MAX_VALUE_MS          = 250
	DEFAULT_EVENT_BUFFER_SIZE         = 1024
	DEFAULT_MAX_UNESTABLISHED         = 50
	DEFAULT_IDLE_SLEEP                = 1 * time.Millisecond
	DEFAULT_MAX_PACKETS_PER_TICK      = 1024
	DEFAULT_RECEIVE_TIMEOUT           = 100 * time.Millisecond
)

// Config controls socket behavior. It is immutable after Bind; the dispatcher
// keeps its own copy and never consults the caller's value again.
type Config struct {
	// BlockingMode makes the dispatcher wait up to ReceiveTimeout for the
	// first datagram of each tick instead of polling.
	BlockingMode bool

	// ReceiveTimeout bounds the blocking-mode wait.
	ReceiveTimeout time.Duration

	// IdleConnectionTimeout is how long an established connection may go
	// without inbound traffic before it is dropped. An unestablished
	// connection is dropped once this long has passed since it was created.
	IdleConnectionTimeout time.Duration

	// HeartbeatInterval is how long an established connection may go
	// without outbound traffic before an empty keep-alive is sent. Zero
	// disables heartbeats.
	HeartbeatInterval time.Duration

	// MaxPacketsInFlight is the number of unacknowledged reliable packets a
	// connection may accumulate before it is torn down.
	MaxPacketsInFlight uint16

	// FragmentSize is the largest payload carried by a single datagram;
	// larger reliable payloads are fragmented.
	FragmentSize uint16

	// FragmentReassemblyTimeout is how long an incomplete fragment group is
	// retained before eviction.
	FragmentReassemblyTimeout time.Duration

	// ReceiveBufferMaxSize is the size of the datagram read buffer.
	ReceiveBufferMaxSize uint16

	// RTTSmoothingFactor weighs each new RTT sample into the running
	// estimate.
	RTTSmoothingFactor float32

	// RTTMaxValueMS clamps individual RTT samples, in milliseconds.
	RTTMaxValueMS uint16

	// SocketEventBufferSize is the capacity of the message and event
	// channels.
	SocketEventBufferSize int

	// MaxUnestablishedConnections caps connections that have not yet seen
	// traffic in both directions.
	MaxUnestablishedConnections uint16

	// PollingIdleSleep is how long StartPolling sleeps after a tick that
	// did no work.
	PollingIdleSleep time.Duration

	// MaxPacketsPerTick bounds how many datagrams one tick may read.
	MaxPacketsPerTick int

	// Logger receives internal diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		ReceiveTimeout:              DEFAULT_RECEIVE_TIMEOUT,
		IdleConnectionTimeout:       DEFAULT_IDLE_TIMEOUT,
		MaxPacketsInFlight:          DEFAULT_MAX_PACKETS_IN_FLIGHT,
		FragmentSize:                DEFAULT_FRAGMENT_SIZE,
		FragmentReassemblyTimeout:   DEFAULT_FRAGMENT_REASSEMBLY_LIMIT,
		ReceiveBufferMaxSize:        DEFAULT_RECEIVE_BUFFER_SIZE,
		RTTSmoothingFactor:          DEFAULT_RTT_SMOOTHING_FACTOR,
		RTTMaxValueMS:               DEFAULT_RTT_MAX_VALUE_MS,
		SocketEventBufferSize:       DEFAULT_EVENT_BUFFER_SIZE,
		MaxUnestablishedConnections: DEFAULT_MAX_UNESTABLISHED,
		PollingIdleSleep:            DEFAULT_IDLE_SLEEP,
		MaxPacketsPerTick:           DEFAULT_MAX_PACKETS_PER_TICK,
	}
}

// withDefaults fills unset fields so a partially populated Config behaves
// like DefaultConfig for everything the caller left alone. HeartbeatInterval
// is excluded: zero there means disabled.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.IdleConnectionTimeout == 0 {
		c.IdleConnectionTimeout = d.IdleConnectionTimeout
	}
	if c.MaxPacketsInFlight == 0 {
		c.MaxPacketsInFlight = d.MaxPacketsInFlight
	}
	if c.FragmentSize == 0 {
		c.FragmentSize = d.FragmentSize
	}
	if c.FragmentReassemblyTimeout == 0 {
		c.FragmentReassemblyTimeout = d.FragmentReassemblyTimeout
	}
	if c.ReceiveBufferMaxSize == 0 {
		c.ReceiveBufferMaxSize = d.ReceiveBufferMaxSize
	}
	if c.RTTSmoothingFactor == 0 {
		c.RTTSmoothingFactor = d.RTTSmoothingFactor
	}
	if c.RTTMaxValueMS == 0 {
		c.RTTMaxValueMS = d.RTTMaxValueMS
	}
	if c.SocketEventBufferSize == 0 {
		c.SocketEventBufferSize = d.SocketEventBufferSize
	}
	if c.MaxUnestablishedConnections == 0 {
		c.MaxUnestablishedConnections = d.MaxUnestablishedConnections
	}
	if c.PollingIdleSleep == 0 {
		c.PollingIdleSleep = d.PollingIdleSleep
	}
	if c.MaxPacketsPerTick == 0 {
		c.MaxPacketsPerTick = d.MaxPacketsPerTick
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
