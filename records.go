package invoiceflow

import "time"

// PurchaseOrder as returned by the ERP connector.
type PurchaseOrder struct {
	PONumber  string     `json:"po_number" yaml:"po_number"`
	Vendor    string     `json:"vendor" yaml:"vendor"`
	Total     float64    `json:"total" yaml:"total"`
	Status    string     `json:"status" yaml:"status"`
	LineItems []LineItem `json:"line_items" yaml:"line_items"`
}

// GoodsReceipt records delivery against a purchase order.
type GoodsReceipt struct {
	GRNNumber    string `json:"grn_number"`
	PONumber     string `json:"po_number"`
	ReceivedDate string `json:"received_date"`
	Status       string `json:"status"`
}

// HistoricalInvoice is a prior invoice from the same vendor.
type HistoricalInvoice struct {
	InvoiceID string  `json:"invoice_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	PaidDate  string  `json:"paid_date,omitempty"`
}

// VendorProfile is the result of vendor enrichment.
type VendorProfile struct {
	CreditScore float64 `json:"credit_score"`
	RiskScore   float64 `json:"risk_score"`
	Industry    string  `json:"industry,omitempty"`
	Provider    string  `json:"provider"`
}

// AccountingEntry is one row of the journal built during reconciliation.
type AccountingEntry struct {
	Account     string  `json:"account"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description"`
}

// PostingReceipt acknowledges a journal posted to the ERP.
type PostingReceipt struct {
	TransactionID string    `json:"transaction_id"`
	PostedAt      time.Time `json:"posted_at"`
}

// PaymentSchedule acknowledges a scheduled vendor payment.
type PaymentSchedule struct {
	PaymentID     string  `json:"payment_id"`
	ScheduledDate string  `json:"scheduled_date"`
	Amount        float64 `json:"amount"`
}

// NotificationReceipt describes one notification sent by a Notifier.
type NotificationReceipt struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at"`
}

// ExtractedText is the result of running text extraction over attachments.
type ExtractedText struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}
