// Package all wires all built-in sinks into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete sink, which register their
// factories and DDL bootstrappers with the storage package. The "memory" kind
// lives in storage itself and is always available.
//
// Kinds made available:
//
//   - "bulk"     (docpump/internal/storage/bulk)
//   - "postgres" (docpump/internal/storage/postgres)
//   - "sqlite"   (docpump/internal/storage/sqlite)
//
// Typical usage (in cmd/docpump or a similar wiring layer):
//
//	import _ "docpump/internal/storage/all"
//
//	sink, err := storage.New(ctx, storage.Config{Kind: job.Sink.Kind, DSN: job.Sink.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer sink.Close()
//
// A binary that supports only a subset of sinks can import the required
// backends directly instead of this package.
package all

import (
	_ "docpump/internal/storage/bulk"
	_ "docpump/internal/storage/postgres"
	_ "docpump/internal/storage/sqlite"
)
