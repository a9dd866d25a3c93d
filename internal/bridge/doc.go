/*
Package bridge turns the asynchronous filesystem capability into the
synchronous, errno-shaped calls exported by the C library.

A Bridge owns a table of handles. Each handle pairs a types.FileSystem
(the database-backed store, optionally layered over a host directory and
fronted by the stat cache) with an executor goroutine that runs its calls
one at a time. Handle ids carry a generation, so a closed or stale id is
rejected with EINVAL rather than reaching another handle.

Every call returns a Result: 0 on success, otherwise a positive errno.
The bridge itself produces EINVAL, ENOENT and EIO; classified capability
failures map through pkg/errors.

Buffers and strings returned to the caller are recorded in a Ledger and
must be released through FreeBuffer and FreeString.
*/
package bridge
