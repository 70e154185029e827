// Command formationctl runs operational tasks: schema migrations, seeding
// reference data, the outbox relay and offline template rendering.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
