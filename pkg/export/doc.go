// Package export renders sales, expense, and product reports as CSV or
// XLSX downloads. Reports are built from ledger records into a flat
// header-plus-rows shape, then written to any io.Writer so handlers can
// stream them or stash a copy in object storage.
package export
