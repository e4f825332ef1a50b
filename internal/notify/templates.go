package notify

// TemplateKind names the fixed set of message templates the dispatcher can
// render. Notifications carry their kind in metadata under "template";
// anything unrecognized falls back to the generic template.
type TemplateKind string

const (
	TemplateDocumentExpiry  TemplateKind = "document-expiry"
	TemplateFilingReminder  TemplateKind = "filing-reminder"
	TemplateComplianceAlert TemplateKind = "compliance-alert"
	TemplateGeneric         TemplateKind = "generic"
)
