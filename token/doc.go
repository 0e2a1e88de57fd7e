// Package token issues and validates signed, time-bounded identity tokens.
//
// Tokens are compact JWS values (header.claims.tag) produced with
// github.com/golang-jwt/jwt/v5. The header carries "alg" and "kid"; the
// claims carry "sub", "iat", "exp" and optional "nbf", "jti" and custom
// fields. Keys come from a keystore.Lookup, so tokens signed with a
// rotated-out key keep validating while that key stays in the store.
//
// Validation never trusts the algorithm a token declares: the declaration
// must appear in the validator's allow-list and match the algorithm bound
// to the resolved key before any tag is computed.
//
//	issuer, err := token.NewIssuer(token.IssuerConfig{Keys: store, TTL: time.Hour})
//	raw, claims, err := issuer.IssueFor("user-1", nil)
//
//	validator, err := token.NewValidator(token.ValidatorConfig{
//	    Keys:       store,
//	    Algorithms: []keystore.Algorithm{keystore.HS256},
//	})
//	claims, err := validator.Validate(raw)
//	if reason, ok := token.ReasonOf(err); ok {
//	    // reject as unauthorized with reason
//	}
package token
