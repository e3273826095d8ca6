// Package resilience wraps calls to unreliable local engines, such as the
// OCR engine, with bounded retries and a circuit breaker.
//
// A breaker opens after repeated failures so a broken engine is skipped for
// a while instead of being retried on every page.
package resilience
