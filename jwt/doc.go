// Package jwt issues and validates the signed bearer tokens used by authcore:
// access tokens carrying {sub, username, role, sid, iat, exp} and short-lived MFA
// challenge tokens carrying {sub, username, email, iat, exp}.
//
// Validation distinguishes [ErrExpired] from [ErrInvalid]. Expired tokens are
// routine, invalid ones may indicate tampering. [Manager.ValidateAccessIgnoringExpiry]
// exists only so logout can read the claims of an already-expired token.
package jwt
