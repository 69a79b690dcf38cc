// Package query provides the console's view filter: a compiled boolean
// expression over alarm fields applied to the active category's ordered
// snapshot. Filtering is strictly a read-side concern; it never affects
// which events the pipelines apply.
package query
