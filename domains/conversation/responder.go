package conversation

import "context"

type Turn struct {
	Role string `json:"role"` // user | assistant
	Text string `json:"text"`
}

type SenderMetadata struct {
	SenderID   string
	InstanceID string
	PushName   string
}

// IResponder generates the automated reply. Callers bound it with a deadline.
type IResponder interface {
	GenerateReply(ctx context.Context, history []Turn, newText string, meta SenderMetadata) (string, error)
}

// TurnsFromHistory maps stored messages to responder turns, oldest first.
func TurnsFromHistory(history []Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Author == AuthorSystem {
			role = "assistant"
		}
		turns = append(turns, Turn{Role: role, Text: m.Text})
	}
	return turns
}
