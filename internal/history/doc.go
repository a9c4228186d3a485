// Package history answers read-only questions about the irrigation event
// log held by the device registry.
//
// Two queries are provided:
//
//   - History merges the event logs of several devices over a time window
//     and returns them newest first, annotated with each device's name.
//   - UsageAnalytics summarises water use over a fixed period: totals,
//     a zero-filled daily series, per-device totals and a trend direction.
//
// Both queries are pure reads. They never change event state, and an
// unknown device in the request is skipped rather than failing the query.
package history
