package store

// Broadcast ENUMs
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusSending   = "sending"
	BroadcastStatusCompleted = "completed"
	BroadcastStatusFailed    = "failed"
	BroadcastStatusCancelled = "cancelled"
)

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeFile     = "file"
	MessageTypeLocation = "location"
)

const (
	SendSpeedSlow   = "slow"
	SendSpeedNormal = "normal"
	SendSpeedFast   = "fast"
	SendSpeedCustom = "custom"
)

// Recipient ENUMs
const (
	RecipientStatusPending   = "pending"
	RecipientStatusQueued    = "queued"
	RecipientStatusSending   = "sending"
	RecipientStatusSent      = "sent"
	RecipientStatusDelivered = "delivered"
	RecipientStatusFailed    = "failed"
	RecipientStatusSkipped   = "skipped"
)

// Device ENUMs
const (
	DeviceStatusConnected    = "connected"
	DeviceStatusDisconnected = "disconnected"
	DeviceStatusPairing      = "pairing"
)
