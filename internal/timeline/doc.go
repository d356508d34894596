// Package timeline merges message and poll snapshots into a render-ready
// conversation timeline.
//
// # Merging
//
// Merge takes the latest message and poll snapshots and produces one ordered
// entry list:
//
//   - A message of type poll is resolved through its Content (the poll id)
//     into a poll entry, timestamped by the poll's creation time
//   - A poll reference that resolves to no poll (deleted concurrently) is
//     dropped
//   - Everything else becomes a message entry
//
// Entries are ascending by timestamp with a stable tie-break, and every
// entry carries a key ("msg_" or "poll_" plus the id) that is unique within
// one merge and stable across merges of the same data. Keys let a rendering
// layer reconcile list updates without re-identifying entries.
//
// # Day Segmentation
//
// Segment inserts a day-marker entry before the first entry of each calendar
// day, computed in a caller-supplied location. DayLabel renders a day as
// "Today", "Yesterday", a weekday name within the last week, or a date.
package timeline
