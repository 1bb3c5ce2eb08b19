package domain

// Recipient is a contact owned by the external contact system. This service
// only reads recipients.
type Recipient struct {
	ID    int64  `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
}
