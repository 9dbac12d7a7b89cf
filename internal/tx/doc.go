// Package tx implements the transaction submission lifecycle of the relay:
// build unsigned transaction data, apply an optional gas price override, sign
// and broadcast through a chain provider, report the hash, await the receipt,
// and decode the revert reason when a transaction fails on chain. Lifecycle
// state is reported as merge-patches through a sink callback and persisted in
// a submission store; queue and processor types drive submissions
// asynchronously.
package tx
