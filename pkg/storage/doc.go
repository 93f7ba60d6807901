// Package storage manages the download directory and atomic file writes.
//
// Downloaded files are named after the post id plus the extension of the
// file URL:
//
//	name := storage.Filename(post.ID, post.FileURL) // "12345.png"
//	if !m.Exists(name) {
//	    err := m.Save(name, data)
//	}
//
// Save never replaces an existing file. WriteFileAtomic is the
// temp-file-fsync-rename helper shared by the JSON state stores.
package storage
