package protocol

const AppName = "spancache"

// define upstream protocol constants
const (
	ProtocolRequestIDKey = "X-Request-ID"
	ProtocolUserAgent    = AppName + "/1"
)
