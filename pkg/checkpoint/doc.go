// Package checkpoint keeps the resume cursor of every search.
//
// The cursor is the last page whose processing completed, keyed by the exact
// tag string. Identical tag strings share one cursor and different strings
// never interfere. A restart resumes at cursor+1.
//
// The file is rewritten atomically on every save and merged with what is
// already on disk, so cursors written by earlier runs survive. Cursors never
// move backwards.
package checkpoint
