package codec

// Message ids follow the gateway's published protocol. They are a versioned
// external contract; do not renumber.

// Outgoing (client -> gateway) message ids.
const (
	msgReqMktData     = 1
	msgCancelMktData  = 2
	msgPlaceOrder     = 3
	msgCancelOrder    = 4
	msgReqCurrentTime = 49
	msgStartAPI       = 71
)

// Incoming (gateway -> client) message ids.
const (
	msgTickPrice     = 1
	msgTickSize      = 2
	msgOrderStatus   = 3
	msgErrMsg        = 4
	msgNextValidID   = 9
	msgExecutionData = 11
	msgManagedAccts  = 15
	msgCurrentTime   = 49
)

// Handshake constants.
const (
	apiPrefix        = "API\x00"
	minClientVersion = 100
	maxClientVersion = 187
)

// MinServerVersion is the oldest gateway protocol version this client
// speaks. Older servers fail the connect with a version mismatch.
const MinServerVersion = 100

// MaxFrameSize bounds a single frame payload. Frames announcing a larger
// length indicate stream corruption.
const MaxFrameSize = 1 << 20
