/*
Package api defines the HTTP surface of the certificate trust backend.

The package itself holds the request and response types shared by the
server and its clients. Subpackages:

  - handlers: chi routes for institutions, issuance, revocation, deployment
    and public verification
  - clients: a Go client for the same routes

# Identity

Institution routes trust the X-Institution-Id header, which is set by the
authenticating gateway. The wallet address an institution acts with is part
of each request body and is checked against the institution record before
any transaction is prepared. The backend never signs transactions.

# Transactions

Every state change on the ledger is split in two calls. Prepare validates
the request and returns the network, chain id, contract address and ABI
encoded calldata for the wallet to sign. Confirm takes the resulting
transaction hash and records whatever off-chain state follows from it.

# Errors

Non-2xx responses carry ErrorResponse. Insufficient wallet balance answers
402 with the observed balance and the required reserve in ether.
*/
package api
