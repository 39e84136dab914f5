package model

import "time"

// DocumentType tags an ingested document with its business category.
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeContract   DocumentType = "contract"
	DocumentTypeMSA        DocumentType = "msa"
	DocumentTypeLease      DocumentType = "lease"
	DocumentTypeFixedAsset DocumentType = "fixed-asset"
)

// Document represents an ingested document. Instances are immutable once
// stored; tasks and findings reference the document by ID, never by copy.
type Document struct {
	ID         string       `json:"id"`
	Type       DocumentType `json:"type"`
	PayloadRef string       `json:"payloadRef"`
	Confidence float64      `json:"confidence"`
	ReceivedAt time.Time    `json:"receivedAt"`
}
