package protocol

import (
	"fmt"
	"strings"
)

// GameCommand identifies a game coordination message.
type GameCommand int

const (
	GameUnknown GameCommand = iota
	GameMasterPeer
	GameReset
	GameUpdateHighScore
	GameRetrieveHighScore
	GameConnected
)

func (c GameCommand) String() string {
	switch c {
	case GameMasterPeer:
		return "MasterPeer"
	case GameReset:
		return "GameReset"
	case GameUpdateHighScore:
		return "UpdateHighScore"
	case GameRetrieveHighScore:
		return "RetrieveHighScore"
	case GameConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// GameSeparator delimits game message fields.
const GameSeparator = "@"

// GameRequest is an "@"-separated game coordination message. Fields holds
// every non-empty field, including the command word.
type GameRequest struct {
	Command GameCommand
	Fields  []string
	Raw     string
}

func (*GameRequest) isRequest() {}

// Summary implements Request.
func (r *GameRequest) Summary() string {
	return fmt.Sprintf("game command=%s fields=%q", r.Command, r.Fields)
}

// DecodeGame classifies a game message. Unknown messages decode to
// GameUnknown rather than an error so the caller can reply in kind.
func DecodeGame(raw []byte) *GameRequest {
	msg := strings.TrimRight(string(raw), "\r\n")

	var fields []string
	for _, f := range strings.Split(msg, GameSeparator) {
		if f != "" {
			fields = append(fields, f)
		}
	}

	req := &GameRequest{Fields: fields, Raw: msg}
	switch {
	case len(fields) == 0:
		req.Command = GameUnknown
	case fields[len(fields)-1] == "MasterPeer":
		req.Command = GameMasterPeer
	case strings.HasPrefix(msg, "GameReset"):
		req.Command = GameReset
	case strings.HasPrefix(msg, "UpdateHighScore"):
		req.Command = GameUpdateHighScore
	case strings.HasPrefix(msg, "RetrieveHighScore"):
		req.Command = GameRetrieveHighScore
	case msg == "connected":
		req.Command = GameConnected
	}
	return req
}

// EncodeGame renders a game reply line.
func EncodeGame(reply string) []byte {
	return []byte(reply + CRLF)
}
