// Package presence answers whether a page is already materialized in the
// downstream full-page cache. A Checker consults an ordered list of
// backends (the shared cache store first, then the on-disk cache artifacts)
// and stops at the first hit.
package presence
