// Package web3 houses blockchain connectivity utilities for the relay,
// including the chain client abstraction, RPC implementations, and
// multi-chain configuration helpers. It lets the submission lifecycle talk to
// EVM compatible networks such as Ethereum, BSC, and Polygon through one
// narrow interface, covering gas estimation, broadcast, batched broadcast,
// and receipt polling.
package web3
