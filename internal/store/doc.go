// Package store manages the durable state shared by every worker process:
// processed-file records, drafts, posting receipts, tasks, and reminder
// events, all backed by a single SQLite database.
//
// Every cross-worker coordination point is a single conditional INSERT or
// UPDATE whose affected-row count decides the winner. Callers never perform a
// read-modify-write pair against shared state; TryClaim, ClaimPosting, and
// ClaimReminderDispatch are the only ways to take ownership of work.
package store
