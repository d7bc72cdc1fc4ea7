package main

import (
	"net/mail"
	"strings"
)

// ExtractBody decodes a message body tree into plain text. Single-part
// text/plain or text/html bodies decode directly; multipart bodies concatenate
// the decoded text of each text sub-part in structural order, skipping
// everything else. A body with no decodable part yields an empty string.
func ExtractBody(part *MessagePart) string {
	var pieces []string
	collectText(part, &pieces)
	return strings.Join(pieces, "\n")
}

func collectText(part *MessagePart, pieces *[]string) {
	if part == nil {
		return
	}

	mimeType := strings.ToLower(part.MimeType)
	if mimeType == "text/plain" || mimeType == "text/html" {
		if len(part.Data) > 0 {
			*pieces = append(*pieces, string(part.Data))
		}
		return
	}

	if strings.HasPrefix(mimeType, "multipart/") {
		for _, sub := range part.Parts {
			collectText(sub, pieces)
		}
	}
}

// parseSender splits a From header like `Name <addr@example.com>` into a
// display name and address. A bare address comes back with an empty name.
func parseSender(fromHeader string) (name, address string) {
	fromHeader = strings.TrimSpace(fromHeader)
	if fromHeader == "" {
		return "", ""
	}

	parsed, err := mail.ParseAddress(fromHeader)
	if err != nil {
		return "", fromHeader
	}
	return parsed.Name, parsed.Address
}
