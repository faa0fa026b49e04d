package models

// RemoteRecord wraps a Document with the remote store's bookkeeping fields.
// Exactly one record exists per user identity.
type RemoteRecord struct {
	ID        string   `json:"_id"`
	Document  Document `json:"document"`
	UserID    string   `json:"userId"`
	UserEmail string   `json:"userEmail,omitempty"`
	Version   int      `json:"_version,omitempty"`
	Created   string   `json:"_created,omitempty"`
	Changed   string   `json:"_changed,omitempty"`
	ChangedBy string   `json:"_changedby,omitempty"`
	CreatedBy string   `json:"_createdby,omitempty"`
}
