// Package store provides the reference implementations of domain.CryptoStore.
//
// Memory keeps everything in process and is what the managers are tested against.
// File persists the same records as JSON under a home directory, one file per record
// family (and one per remote curve key for Olm sessions). All methods are
// concurrency-safe via internal locking and never hand out memory shared with the
// store.
//
// Secret material only ever reaches a store inside sealed pickles; the remaining
// fields are the lookup keys needed to find a record.
//
// Other backends live in sqlstore and redisstore; storetest holds the contract suite
// every backend must pass.
package store
