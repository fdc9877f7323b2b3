// Package jwt issues and verifies the engine's signed bearer tokens.
//
// Three token kinds share one signing key and are told apart by the signed
// "typ" claim: access tokens authorize API calls, refresh tokens renew
// access tokens, and two-factor tokens only complete a pending login.
// Verification is local and never touches a store.
package jwt
