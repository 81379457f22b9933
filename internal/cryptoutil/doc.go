// Package cryptoutil holds small hashing helpers shared by the mapping
// digest and object ETag handling.
package cryptoutil
