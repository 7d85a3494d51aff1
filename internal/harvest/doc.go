// Package harvest defines the records produced from agricultural pages and
// the stages that shape them: building a record from extracted fields,
// validating and timestamping it, and the contracts for the stores, clocks and
// blob targets the pipeline hands those records to.
//
// Records are built once and changed afterwards only by Validator, which
// stamps ScrapedAt. Once a record has been handed to a Store it is treated as
// immutable; a later record with the same natural key is ignored, never
// merged.
package harvest
