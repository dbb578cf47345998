// Package ir defines the canonical representation of emitted values.
//
// Every value recorded from an observable is normalized to a generic JSON
// tree and serialized as RFC 8785 canonical JSON, so that identical values
// always produce identical bytes. Emission IDs are content addresses over
// those bytes.
//
// ir imports nothing internal.
package ir
