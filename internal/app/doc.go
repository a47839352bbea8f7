// Package app wires the study service together and manages its
// lifecycle: configuration loading, observability setup, service
// construction, HTTP routing, and graceful shutdown.
//
// The initialization sequence:
//
//	1. Load configuration from defaults, YAML, and environment
//	2. Initialize logging and OpenTelemetry
//	3. Build the price cache and the study pipeline
//	4. Construct the run manager and its step sequence
//	5. Mount the HTTP handlers and middleware
//	6. Start the server and wait for shutdown signals
//
// Initialization errors are returned to the caller; the package never
// calls os.Exit, so the main function controls the exit process.
package app
