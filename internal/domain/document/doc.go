// Package document contains the domain model for rendered business documents
// and the places they are stored.
//
// Key concepts:
//   - StorageLocator: backend-independent handle to a stored artifact
//   - Session: authenticated handle for the remote file server
//   - UploadRequest / MoveRequest: validated storage commands
//   - Error: classified failure (auth, upload, download, move, timeout, ...)
//
// Artifacts are laid out as {scope}/{year}/{document-type}/{filename}.pdf on
// every backend, so a locator's relative path survives a fallback from the
// remote file server to the object store.
package document
