package recipient

import "time"

// Recipient exposes the contact fields the factory snapshots at creation
// time. The rest of the patient/staff record belongs to the platform, not
// to the notification core.
type Recipient struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
