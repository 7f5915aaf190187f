package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn es un mensaje de la conversacion; se reenvia al generador como historial.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
