// Package posting guarantees at-most-once publication of a draft. Every
// worker that wants to post funnels through PostOnce; the store's receipt
// row decides a single winner and everyone else inherits its result.
package posting
