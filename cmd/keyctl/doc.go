// Package main (cmd/keyctl) is a command-line client for the access-key registry.
//
// Commands:
//
//	generate-key       - Create a secp256k1 signing key file
//	address            - Print the signer address
//	initialize, admin  - Set or show the registry admin
//	mint, show         - Issue or inspect a credential
//	transfer           - Move a credential to another principal
//	freeze, unfreeze   - Key-level freeze
//	expire, sweep      - Deactivate expired credentials
//	verify             - Check whether a user may access content
//	balance, list      - Inspect a principal's credentials
//	freeze-account, unfreeze-account, account-frozen - Account-level freeze (admin)
//	set-content, get-content - Content metadata
//	nonce              - Last request nonce accepted from an address
//
// Example:
//
//	keyctl generate-key
//	keyctl mint --content course-101 --duration 720h
//	keyctl transfer 1 0x8ba1f109551bD432803012645Ac136ddd64DBA72
package main
