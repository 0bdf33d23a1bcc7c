// Package protocol defines the board sync wire contract: the task model,
// the client and server message unions, close codes, and the sync URL
// shape. Both the client and the dev fixture server speak through it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators. Every frame carries one in its "type" field.
const (
	TypeHeartbeat     = "heartbeat"
	TypeTaskMove      = "task.move"
	TypeTaskCreate    = "task.create"
	TypeBoardState    = "board.state"
	TypeTaskUpdated   = "task.updated"
	TypeTaskCreated   = "task.created"
	TypeTaskDeleted   = "task.deleted"
	TypeSuggestionNew = "suggestion.new"
)

// ErrUnknownType is returned when a frame's discriminator is not part of
// the union. Receivers drop such frames silently; new message kinds must
// not break old clients.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ClientMessage is the closed set of client-to-server frames.
type ClientMessage interface {
	clientMessage()
}

// Heartbeat keeps intermediaries from idling out the connection. The id is
// fresh per beat; the server does not acknowledge it.
type Heartbeat struct {
	ID string `json:"id"`
}

// TaskMove requests a status change for one task.
type TaskMove struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
}

// TaskCreate requests creation of a task. The server assigns the id when
// the client leaves it empty.
type TaskCreate struct {
	Task Task `json:"task"`
}

func (Heartbeat) clientMessage()  {}
func (TaskMove) clientMessage()   {}
func (TaskCreate) clientMessage() {}

// ServerMessage is the closed set of server-to-client frames.
type ServerMessage interface {
	serverMessage()
}

// BoardState is the full authoritative snapshot, sent on connect.
type BoardState struct {
	Tasks []Task `json:"tasks"`
}

// TaskUpdated carries a sparse patch for one task.
type TaskUpdated struct {
	TaskID  string    `json:"task_id"`
	Changes TaskPatch `json:"changes"`
}

// TaskCreated announces a new task.
type TaskCreated struct {
	Task Task `json:"task"`
}

// TaskDeleted announces a removal.
type TaskDeleted struct {
	TaskID string `json:"task_id"`
}

// SuggestionNew pushes an AI suggestion.
type SuggestionNew struct {
	Suggestion Suggestion `json:"suggestion"`
}

func (BoardState) serverMessage()    {}
func (TaskUpdated) serverMessage()   {}
func (TaskCreated) serverMessage()   {}
func (TaskDeleted) serverMessage()   {}
func (SuggestionNew) serverMessage() {}

// EncodeClient serializes a client frame with its type discriminator.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch m := msg.(type) {
	case Heartbeat:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			Heartbeat
		}{TypeHeartbeat, m})
	case TaskMove:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			TaskMove
		}{TypeTaskMove, m})
	case TaskCreate:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			TaskCreate
		}{TypeTaskCreate, m})
	default:
		return nil, fmt.Errorf("protocol.EncodeClient: %T: %w", msg, ErrUnknownType)
	}

	if err != nil {
		return nil, fmt.Errorf("protocol.EncodeClient: %w", err)
	}
	return data, nil
}

// DecodeClient parses a client frame by its discriminator. Unknown types
// return ErrUnknownType.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol.DecodeClient: %w", err)
	}

	switch env.Type {
	case TypeHeartbeat:
		var m Heartbeat
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeClient: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTaskMove:
		var m TaskMove
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeClient: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTaskCreate:
		var m TaskCreate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeClient: %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("protocol.DecodeClient: %q: %w", env.Type, ErrUnknownType)
	}
}

// EncodeServer serializes a server frame with its type discriminator.
func EncodeServer(msg ServerMessage) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch m := msg.(type) {
	case BoardState:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			BoardState
		}{TypeBoardState, m})
	case TaskUpdated:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			TaskUpdated
		}{TypeTaskUpdated, m})
	case TaskCreated:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			TaskCreated
		}{TypeTaskCreated, m})
	case TaskDeleted:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			TaskDeleted
		}{TypeTaskDeleted, m})
	case SuggestionNew:
		data, err = json.Marshal(struct {
			Type string `json:"type"`
			SuggestionNew
		}{TypeSuggestionNew, m})
	default:
		return nil, fmt.Errorf("protocol.EncodeServer: %T: %w", msg, ErrUnknownType)
	}

	if err != nil {
		return nil, fmt.Errorf("protocol.EncodeServer: %w", err)
	}
	return data, nil
}

// DecodeServer parses a server frame by its discriminator. Unknown types
// return ErrUnknownType; malformed JSON returns a wrapped error. Either
// way the caller drops the frame without touching connection state.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol.DecodeServer: %w", err)
	}

	switch env.Type {
	case TypeBoardState:
		var m BoardState
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeServer: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTaskUpdated:
		var m TaskUpdated
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeServer: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTaskCreated:
		var m TaskCreated
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeServer: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTaskDeleted:
		var m TaskDeleted
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeServer: %s: %w", env.Type, err)
		}
		return m, nil
	case TypeSuggestionNew:
		var m SuggestionNew
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol.DecodeServer: %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("protocol.DecodeServer: %q: %w", env.Type, ErrUnknownType)
	}
}
