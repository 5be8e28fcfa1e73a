// Package zipper restructures a flat bundle of named columns into one nested
// Arrow record according to a naming-convention schema.
// This package implements:
// - Column grouping by naming pattern into the four collection shapes
// - Declarative schema presets (NanoAOD, PFNano, ScoutingNano)
// - The tree builder attaching cross-references, nested and special items
package zipper
