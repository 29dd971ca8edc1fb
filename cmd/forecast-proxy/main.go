// Command forecast-proxy serves weather forecasts through the request cache.
//
// Usage:
//
//	forecast-proxy serve            # HTTP proxy on $PORT
//	forecast-proxy fetch <url>      # one request through the cache, body to stdout
//
// Configuration is read from the environment (see internal/config).
package main

import (
	"os"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
