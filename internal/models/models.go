package models

// Server -> client message tags.
const (
	MessageTypeWelcome = "welcome"
	MessageTypeStats   = "stats"
)

// Client -> server message tags.
const (
	MessageTypeUpdate  = "update"
	MessageTypeSetName = "setName"
)

// Individual is the per-participant entry in a stats breakdown.
type Individual struct {
	UserID  string  `json:"userId"`
	Boredom int     `json:"boredom"`
	IsBot   bool    `json:"isBot"`
	Name    *string `json:"name"`
}

// RoomStats is the aggregate for one room at a point in time.
type RoomStats struct {
	Average     int          `json:"average"`
	Count       int          `json:"count"`
	Individuals []Individual `json:"individuals"`
}

// WelcomeMessage is sent once to a connection immediately after it joins.
type WelcomeMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Boredom  int    `json:"boredom"`
	RoomStats
}

// StatsMessage is pushed to every live connection on each room-state change.
type StatsMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	RoomStats
}

// ClientMessage is the tagged union sent by clients. Boredom is a pointer so
// a missing or non-numeric value is distinguishable from zero; a payload
// whose boredom is not a JSON number fails to decode and is dropped.
type ClientMessage struct {
	Type    string   `json:"type"`
	Boredom *float64 `json:"boredom,omitempty"`
	Name    string   `json:"name,omitempty"`
}

// Room creation (admin HTTP surface)
type CreateRoomRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateRoomResponse struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// RoomStatsResponse is the GET /api/rooms/{roomId} body.
type RoomStatsResponse struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	RoomStats
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	GlobalUsers int    `json:"globalUsers"`
}

// Error response
type ErrorResponse struct {
	Error string `json:"error"`
}
