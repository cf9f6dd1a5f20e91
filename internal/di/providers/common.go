package providers

import "time"

const (
	// shutdownTimeout bounds how long a feed may take to release its
	// native subscriptions.
	shutdownTimeout = 10 * time.Second
)
