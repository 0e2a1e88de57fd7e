// Package keystore holds the key material used to sign and verify tokens
// and request signatures.
//
// Keys are identified by a key ID (kid) and bound to exactly one
// Algorithm. A Store supports rotation: new keys are added and promoted to
// the default signing key while older keys stay resolvable for
// verification until every credential they may have signed has expired.
//
//	store := keystore.NewStore(keystore.StoreConfig{MaxTokenLifetime: time.Hour})
//
//	err := store.Add(keystore.Key{
//	    ID:        "k1",
//	    Algorithm: keystore.HS256,
//	    Secret:    secret,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := store.SetDefault("k1"); err != nil {
//	    log.Fatal(err)
//	}
//
// Reads (Lookup, Default) never block: the store publishes immutable
// snapshots and writers replace them under a mutex.
//
// # Key Sets
//
// ParseJWKSet converts a JSON Web Key Set into Keys, so key tables can be
// shipped in the same format identity providers publish:
//
//	keys, err := keystore.ParseJWKSet(data)
package keystore
