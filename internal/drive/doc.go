// Package drive is a minimal client for the watched cloud folder: listing
// and downloading new recordings, uploading finished documents, and
// managing the push notification channel whose lease the watch loop renews.
package drive
