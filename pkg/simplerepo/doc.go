// Package simplerepo provides a library for managing data resources with
// DataCite-style metadata and associated binary content.
//
// A DataResource carries identifiers, descriptive metadata, a lifecycle
// state and an access control list. Content uploaded for a resource is
// stored through a pluggable versioning backend which derives checksum,
// size and media type while streaming the bytes to their physical
// location. Every operation takes an explicit Principal describing the
// caller; access decisions combine the caller's roles, scoped permission
// grants and the resource's ACL with its lifecycle state.
//
// The package is storage- and transport-agnostic: persistence is provided
// through the Repository interface (in-memory and Postgres implementations
// live under repo/), physical storage through the VersioningService
// interface (filesystem, disabled and S3 variants live under versioning/),
// and HTTP access through the api subpackage.
package simplerepo
