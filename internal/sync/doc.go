// Package sync implements the folder-based synchronization engine.
//
// Devices never talk to each other. Each device exports its live store's
// buckets into its own subfolder of a shared directory, and imports every
// other device's exports from theirs; replicating the directory between
// machines is left to an external folder synchronizer (Syncthing, Dropbox,
// or similar).
//
// A pass is strictly sequential: bootstrap the staging store, discover the
// non-local remotes, pull each remote's allow-listed buckets into the live
// store, then push the live store's allow-listed buckets into staging.
// Bucket merges are resumable and append-only; re-running a pass with no
// new source events changes nothing at the destination.
package sync
