package dispatch

import (
	"fmt"

	"attest/internal/notify"
)

// Message is a rendered, channel-ready message.
type Message struct {
	Subject string
	Body    string
}

// RenderMessage produces the channel message for a notification from its
// template kind, substituting structured metadata fields. Unknown kinds fall
// back to the generic template so a stale template tag never blocks
// delivery.
func RenderMessage(n notify.Notification, documentLink string) Message {
	meta := func(key string) string { return n.Metadata[key] }

	switch notify.TemplateKind(meta("template")) {
	case notify.TemplateDocumentExpiry:
		subject := fmt.Sprintf("Action required: %s expires in %d days", meta("document_name"), n.ThresholdDays)
		body := fmt.Sprintf(
			"The document %q expires on %s (%d days from now).\n\nPlease renew it before the expiry date to remain compliant.",
			meta("document_name"), meta("expiry_date"), n.ThresholdDays)
		if documentLink != "" {
			body += fmt.Sprintf("\n\nView the document: %s", documentLink)
		}
		return Message{Subject: subject, Body: body}

	case notify.TemplateFilingReminder:
		subject := fmt.Sprintf("Filing reminder: %s", meta("filing_name"))
		body := fmt.Sprintf("The filing %q is due on %s.", meta("filing_name"), meta("due_date"))
		return Message{Subject: subject, Body: body}

	case notify.TemplateComplianceAlert:
		subject := fmt.Sprintf("Compliance alert for %s", meta("client_name"))
		body := n.Message
		return Message{Subject: subject, Body: body}

	default:
		return Message{Subject: "Notification", Body: n.Message}
	}
}
