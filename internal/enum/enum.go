package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusClaimed    = "claimed"
	OrderStatusCancelled  = "cancelled"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleStudent           = "student"
	UserRolePropertyCustodian = "property_custodian"
	UserRoleSystemAdmin       = "system_admin"
)

// ── Group B: Configurable labels (no DB constraint) ──

// Ledger shapes stored in an item's note field.
const (
	LedgerTypeSizeVariations   = "sizeVariations"
	LedgerTypeAccessoryEntries = "accessoryEntries"
)

// Push invalidation events.
const (
	EventItemUpdated  = "item:updated"
	EventItemArchived = "item:archived"
	EventOrderCreated = "order:created"
	EventOrderClaimed = "order:claimed"
)

// Push channel topics. Every event belongs to exactly one.
const (
	TopicItems  = "items"
	TopicOrders = "orders"
)
