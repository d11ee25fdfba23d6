// Package main is the entry point for the Uplink simulation server.
// It only handles dependency injection and server initialization.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
