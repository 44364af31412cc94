// Package notifier delivers price-drop alerts to subscribers.
//
// The tracker hands over a Payload and returns immediately. The service
// renders it into an HTML message with an inline keyboard and puts it on a
// bounded queue. A small worker pool drains the queue under a token bucket
// (Telegram's flood limits), retries failed sends with jittered exponential
// backoff, and suppresses repeats of the same drop inside a dedup window.
// Dedup state can optionally be persisted so it survives restarts.
//
// A short in-memory history of delivered messages is kept for /stats.
package notifier
