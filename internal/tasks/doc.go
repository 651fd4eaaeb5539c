// package tasks orchestrates sync cycles between the two platforms.
//
// A cycle fetches both remote snapshots concurrently, diffs each against
// the local base snapshot, classifies the pair of diffs into
// auto-mergeable changes and conflicts, applies the merged state back to
// whichever platform is behind, and commits the result as the new base.
// Conflicts are parked in the store for later resolution and block only
// the disputed field of the disputed entity.
//
// Progress is streamed through a ProgressUpdate channel; sends never
// block, so a slow or absent consumer cannot stall a cycle.
package tasks
