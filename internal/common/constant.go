package common

// AccessTokenHeaderName is the gRPC metadata key carrying a device access
// token. The change feed accepts it as a query parameter when the client
// cannot send an Authorization header.
const AccessTokenHeaderName = "access_token"

// UnknownDeviceName is shown for replicas whose producing device no longer
// resolves.
const UnknownDeviceName = "Unknown Device"

// DefaultMaxBatchSize bounds the number of files in one sync batch.
const DefaultMaxBatchSize = 100
