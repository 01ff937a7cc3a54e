// Package export serializes flow snapshots to interchange formats.
//
// Five formats are supported: JSON, JSONL, CSV, Markdown and HAR. Every
// export runs through the same preparation step, which strips raw payloads
// and stream chunks unless requested and applies the redaction rules, so
// format writers never see unprepared records.
//
// Redaction rules are regular expressions applied in order; a later rule
// sees the output of an earlier one.
package export
