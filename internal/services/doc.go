// Package services implements the business logic layer between the
// HTTP handlers and the study pipeline. Handlers stay thin: request
// parsing and RFC 7807 rendering live in transport, while run
// orchestration, market resolution, and artifact access live here.
//
// Services follow the same pattern throughout: interface-driven
// construction with injected dependencies, context propagation on every
// operation, and domain-specific sentinel errors the handlers translate
// into HTTP status codes.
package services
