package models

// Collection names shared by every store backend. The same names double as
// browser storage keys and remote collection names in the clients.
const (
	CollectionUsers    = "users"
	CollectionUploads  = "uploads"
	CollectionChat     = "chatMessages"
	CollectionAuditLog = "auditLog"
)

// Collections lists every collection in a stable order.
var Collections = []string{
	CollectionUsers,
	CollectionUploads,
	CollectionChat,
	CollectionAuditLog,
}

// Record is implemented by every document stored in a collection.
type Record interface {
	RecordID() string
	SetRecordID(id string)
}
