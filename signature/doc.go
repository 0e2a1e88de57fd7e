// Package signature implements the gatekeeper request signature scheme.
//
// A signature binds one request to one key at one point in time. The
// signer and the verifier each reduce the request to Facts and serialize
// them into a canonical string (version v1):
//
//	gatekeeper-v1
//	<METHOD>
//	<path without trailing slash, "/" for root>
//	<query sorted by key then value, k=v joined by "&">
//	<header>:<trimmed value>     (one line per covered header)
//	<hex sha-256 body digest>
//	<unix created timestamp>
//	<key id>
//	<algorithm>
//
// The keyed digest over that string travels in two headers:
//
//	X-Signature-Input: keyid="k1";alg="HS256";created=1700000000
//	X-Signature: <base64url without padding>
//
// Verification recomputes the canonical string from the received request,
// so any change to a covered component yields ReasonCanonicalMismatch.
// Signatures older or newer than the configured skew yield ReasonExpired,
// which bounds replay without a nonce cache.
//
//	scheme, err := signature.NewScheme(signature.SchemeConfig{
//	    Skew: 5 * time.Minute,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sig, err := scheme.Sign(facts, key)
//	input, value := sig.Headers()
//
//	err = scheme.Verify(facts, sig, store)
//	if reason, ok := signature.ReasonOf(err); ok {
//	    // reject with reason
//	}
package signature
