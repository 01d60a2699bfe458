/*
Package handlers implements the HTTP routes of the certificate trust backend.

Institution routes read the caller's identity from the X-Institution-Id
header and delegate to the issuance, revocation and deployment coordinators.
Each ledger change is served as a prepare/confirm pair: prepare answers with
a descriptor carrying ABI encoded calldata, confirm records the off-chain
consequences of the transaction the wallet sent.

Public routes verify certificates by transaction hash, report live
revocation status, hash or compare uploaded documents and serve archived
documents. They share one rate limit policy when a limiter is configured.

Errors from the lower layers are mapped to status codes by StatusFor and
written as api.ErrorResponse.
*/
package handlers
