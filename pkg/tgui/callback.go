package tgui

import (
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes,
// counting the full "verb:payload" string.
const MaxCallbackDataLen = 64

// Data formats inline callback data as "verb:payload".
// Payload segments are kept as-is (no escaping); callers must keep the full
// string within MaxCallbackDataLen.
func Data(verb string, payload ...string) string {
	verb = strings.TrimSpace(verb)
	if len(payload) == 0 {
		return verb
	}
	return verb + ":" + strings.Join(payload, ":")
}

// Split parses callback data formatted by Data back into verb and payload
// segments. The verb is the first colon-separated token.
func Split(data string) (verb string, payload []string) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", nil
	}
	parts := strings.Split(data, ":")
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}
