package models

// UserProfile is the public profile used to label chats.
type UserProfile struct {
	ID          string `json:"-"`
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Email       string `json:"email,omitempty"`
}
