// Package kvstore implements model.KeyValueStore. We use it to persist
// client certificates and user-approved server certificates.
package kvstore
