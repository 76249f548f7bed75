/*
Package api defines the wire types shared by the registry HTTP server and its clients.

# Authentication

Mutating requests are signed. The client sends its address in X-Principal, a
decimal nonce in X-Nonce and a 65-byte secp256k1 signature in X-Signature,
computed over the EIP-191 text hash of

	"<OPERATION>\n<NONCE>\n<METHOD> <ESCAPED PATH>\n<BODY>"

OPERATION is fixed by the route (mint, transfer, freeze, freeze_account,
set_content_metadata), so a signature cannot be reused for a different
operation. The registry stores the last nonce it accepted from each principal
in the same transaction as the operation and rejects any nonce that is not
greater, so a captured request cannot be replayed. ESCAPED PATH is the path
the server sees, which starts at /api/v1 even when a proxy mounts the API
under a prefix.

# Routes

	POST /api/v1/initialize                        initialize the admin
	GET  /api/v1/admin                             current admin
	POST /api/v1/credentials                       mint (signed)
	GET  /api/v1/credentials/{id}                  credential record
	POST /api/v1/credentials/{id}/transfer         transfer (signed)
	POST /api/v1/credentials/{id}/freeze           key-level freeze (signed)
	POST /api/v1/credentials/{id}/expire           expire a single credential
	GET  /api/v1/credentials/{id}/access/{user}    verify access
	GET  /api/v1/accounts/{address}/balance        bucket counts
	GET  /api/v1/accounts/{address}/credentials    held credentials
	POST /api/v1/accounts/{address}/sweep          sweep expired credentials
	POST /api/v1/accounts/{address}/freeze         account-level freeze (signed, admin)
	GET  /api/v1/accounts/{address}/frozen         account freeze flag
	GET  /api/v1/accounts/{address}/nonce          last accepted request nonce
	PUT  /api/v1/content/{ref}                     content metadata (signed)
	GET  /api/v1/content/{ref}                     content metadata

Subpackage clients implements a signing client for these routes.
*/
package api
