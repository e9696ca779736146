package mail

// BuildMessage exposes MIME assembly for tests.
func BuildMessage(from string, to []string, subject, body, attachmentName string, attachment []byte) ([]byte, error) {
	return buildMessage(from, to, subject, body, attachmentName, attachment)
}
