/*
Package types provides the core interfaces and data structures shared across AgentFS.

The central contract is FileSystem, the capability that every backing variant
implements: the database-backed store, the host passthrough and the
copy-on-write overlay that layers the first over the second. Consumers such as
the C bridge depend only on this interface and never on a concrete variant.

# Result Shape

Lookups return a triple (value, found, err):

	st, ok, err := fs.Stat(ctx, "/notes.txt")
	switch {
	case err != nil:
		// classified or generic failure
	case !ok:
		// path does not exist
	default:
		// use st
	}

Classified failures are *errors.AgentFSError values from pkg/errors, which
carry the canonical errno mapping used at the C boundary.

# Paths

Paths are absolute, slash separated and rooted at the filesystem root ("/").
Implementations normalize with utils.NormalizePath before use.
*/
package types
