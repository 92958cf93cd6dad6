// Package reindex rebuilds derived place data after the tag vocabulary
// changes. Tag bitsets are cached on each place together with the version
// of the encoder that built them; the reindexer walks every place in
// batches, re-derives stale bitsets, and checkpoints its progress so an
// interrupted run resumes where it stopped.
package reindex
