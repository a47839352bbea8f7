// Package http contains the HTTP handlers of the study service. The
// handlers stay thin: they bind and validate requests, delegate to the
// service layer, and render responses. Failures become RFC 7807
// problem documents through the shared error handler.
package http
