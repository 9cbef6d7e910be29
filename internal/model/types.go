package model

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

// Batch is a telemetry batch descriptor: the unit of provisioning.
type Batch struct {
	BatchID   string // Unique per producer authority (e.g., "batch-17")
	BurnedKwh uint64 // Clean energy consumed producing the batch (kWh)
}

// ProductionReport is the per-organization processed telemetry view.
type ProductionReport struct {
	EacID               string // Synthetic certificate id (e.g., "eac-1")
	OrganizationID      string
	OrganizationName    string
	AvailableHydrogenKg uint64 // BurnedKwts / electricity-per-kg
	ProductionDate      string // RFC 3339
	PricePerKg          uint64
}

// -----------------------------------------------------------------------------
// Marketplace
// -----------------------------------------------------------------------------

// Listing is the externally visible representation of a standing offer,
// joined from the listing, canister and certificate resources.
type Listing struct {
	PublicKey          string // Listing address (base58)
	CanisterPublicKey  string // Hydrogen canister address
	Price              uint64 // Offer price per unit
	Amount             uint64 // Custody token balance still for sale
	TransferManagerAta string // Custody token account
	Producer           string // Producer authority
	TokenMint          string // Canister token mint
	BatchID            string // Telemetry batch id
	ProductionDate     string // Human-readable, best effort
	EacMint            string // Certificate token mint, "unknown" if unresolved
}

// UnknownEacMint is the sentinel used when the certificate cannot be located
// during listing projection.
const UnknownEacMint = "unknown"

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// User is a marketplace user profile row.
type User struct {
	ID            string // Primary key (uuid)
	IdentityID    string // Subject id at the identity-assertion service
	Email         string
	Name          string
	Role          string
	Photo         string
	JobTitle      string
	WalletAddress string
}

// LinkedAccount is an account linked to an identity subject.
type LinkedAccount struct {
	Type    string // e.g., "email", "google_oauth", "wallet"
	Name    string
	Email   string
	Address string // Email address or wallet address depending on type
}
