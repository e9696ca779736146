// Package analysis turns uploaded audio into a structured minutes draft:
// a Whisper-style transcription call followed by a JSON-mode chat
// completion. Both calls retry transient failures with exponential backoff
// and honor Retry-After.
package analysis
