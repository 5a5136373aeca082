package domain

// Member is a user's participation in one room.
// No transport or lifecycle logic here.
type Member struct {
	User   User   `json:"user"`
	RoomID RoomID `json:"room_id"`
}

// Camera is one entry of a room's active camera set.
type Camera struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
}
