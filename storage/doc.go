// Package storage archives issued certificate documents and stages uploads
// between the two halves of the issuance handshake.
//
// # Archive backends
//
// Archived documents are content addressed: the identifier is the SHA-256 of
// the document, which is also the documentHash recorded on the ledger. A
// verifier holding only the hash can therefore fetch the original document.
//
// Backends are configured with location URIs:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
//   - file:///var/lib/certificates
//   - s3://bucket-name/prefix?region=us-west-2&endpoint=minio.local:9000
//   - ipfs://127.0.0.1:5001/certificates?timeout=30s
//   - vault://vault.example.com:8200/secret/certificates?token_env=VAULT_TOKEN
//
// Several locations can be combined with StorageBackendFactory.CreateMultiBackend.
// The resulting MultiStorageBackend writes to every available backend and reads
// from the first one holding the document.
//
// # Upload staging
//
// FileUploadStore keeps uploaded documents on local disk under opaque handles
// until issuance is confirmed or abandoned. Sweep removes abandoned uploads.
package storage
