// Package api exposes a small HTTP surface for observing a running crawl:
// liveness, Prometheus metrics, and the coordinator's progress snapshot.
package api
