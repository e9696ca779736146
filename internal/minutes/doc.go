// Package minutes defines the meeting-minutes domain model: the draft
// produced by analysis, the action items parsed out of it, and the due-date
// notation those items carry.
package minutes
