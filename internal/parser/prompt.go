package parser

import (
	"strings"
	"time"
)

// buildExtractionPrompt constructs the instruction block sent to every
// model provider. The model must return one strict JSON object matching
// the Schema field set; everything else is rejected as malformed.
func buildExtractionPrompt(rawText string, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are a transaction parser for a personal expense tracker.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Extract structured fields from the user's message.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing text).\n")
	b.WriteString("- Output a single JSON object.\n\n")

	b.WriteString("Message: \"" + rawText + "\"\n")
	b.WriteString("Received at: " + now.Format("2006-01-02") + "\n\n")

	b.WriteString("The object must have exactly these string fields:\n")
	b.WriteString("- \"transaction_type\": one of \"expense\", \"income\", \"transfer\", \"lend\", \"receive-payment\"\n")
	b.WriteString("- \"amount\": numeric string, e.g. \"500\" or \"12.50\"\n")
	b.WriteString("- \"category\": spending category, e.g. \"groceries\", \"food\", \"transport\"\n")
	b.WriteString("- \"merchant\": store or place name\n")
	b.WriteString("- \"counterparty\": the person money was lent to or received from\n")
	b.WriteString("- \"time_reference\": \"today\", \"yesterday\", \"N days ago\", \"last week\", or a date\n")
	b.WriteString("- \"wallet_type\": \"wallet\" or \"total_stack\"\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Use empty string \"\" for any field you cannot determine. Never guess.\n")
	b.WriteString("- \"lent 500 to John\" is a lend with counterparty \"John\".\n")
	b.WriteString("- \"received 500 from John\" is a receive-payment with counterparty \"John\".\n")
	b.WriteString("- Salary or earnings with no named person is income, not receive-payment.\n")
	b.WriteString("- Do NOT wrap the response in code fences.\n")
	b.WriteString("- Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}
