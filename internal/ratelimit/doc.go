// Package ratelimit is per-IP token bucket middleware for the public
// listener.
//
// State lives in process memory and is not shared between instances. It
// limits a single noisy client; distributed floods need upstream filtering.
package ratelimit
