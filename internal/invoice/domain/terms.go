package domain

import "time"

// PaymentTerms controls how the due date derives from the issue date.
type PaymentTerms string

const (
	TermsDueOnReceipt PaymentTerms = "DUE_ON_RECEIPT"
	TermsNet7         PaymentTerms = "NET_7"
	TermsNet15        PaymentTerms = "NET_15"
	TermsNet30        PaymentTerms = "NET_30"
	TermsNet60        PaymentTerms = "NET_60"
)

// DueDate derives the payment deadline from the issue date. Unknown terms
// fall back to NET_15.
func (t PaymentTerms) DueDate(issueDate time.Time) time.Time {
	switch t {
	case TermsDueOnReceipt:
		return issueDate
	case TermsNet7:
		return issueDate.AddDate(0, 0, 7)
	case TermsNet30:
		return issueDate.AddDate(0, 0, 30)
	case TermsNet60:
		return issueDate.AddDate(0, 0, 60)
	default:
		return issueDate.AddDate(0, 0, 15)
	}
}
