package device

import "time"

// Device is a registered push token. A recipient may hold several; the push
// channel fans out across all active ones.
type Device struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	Token       string    `json:"token"`
	DeviceType  string    `json:"device_type"` // "ios", "android", "web"
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
