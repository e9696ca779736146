// Package slack talks to the messaging platform: posting and updating the
// minutes draft message, opening the edit modal, uploading rendered
// documents, verifying inbound request signatures, and parsing interaction
// callbacks.
package slack
