// Package auth provides interfaces.Authorizer implementations.
//
// SignatureAuthorizer accepts a proof when its signature, an Ethereum personal_sign
// style secp256k1 signature over the operation, nonce and request payload, recovers
// to the claimed principal. Nonce freshness is enforced by the ledger.
// TrustedAuthorizer accepts any proof naming the principal and is meant for test
// harnesses and deployments behind an authenticating proxy.
package auth
