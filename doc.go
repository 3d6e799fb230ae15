// Package clone copies photos from a camera card, or any gocloud.dev/blob location, into a
// local library. Each photo is resized and re-encoded according to the policy rule for its
// star rating and, when a track log covers the time it was taken, tagged with a GPS position
// interpolated from that log.
//
// The work is split across the following packages:
//
//   - track: loads GPX and GeoJSON track logs and locates a position for a moment in time.
//   - policy: parses and validates the rating to rule table.
//   - operations/gather: finds photos and reads their capture time and rating.
//   - operations/clone: the Executor which transforms and writes a single photo.
//   - operations/process: runs a batch of photos through a bounded pool of workers.
//   - operations/remove: prunes temporary files left behind by an interrupted run.
//   - sources, config, media, journal: track-log storage, configuration, GeoJSON output
//     and the SQLite run journal.
//
// The cmd/clone tool wires all of these together.
package clone
