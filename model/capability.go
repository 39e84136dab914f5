package model

// Capability identifies a category of validation logic that can be satisfied
// by any agent registered for it.
type Capability string

const (
	CapabilityExtraction    Capability = "extraction"
	CapabilityMasterData    Capability = "master-data"
	CapabilityContractMatch Capability = "contract-matching"
	CapabilityMSAReview     Capability = "msa-review"
	CapabilityLeaseReview   Capability = "lease-review"
	CapabilityFixedAssets   Capability = "fixed-assets"
)
