package dispatch

import (
	"net"
	"strings"
	"sync"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/protocol"
)

// HighscoreKey is the directory entry holding the "@"-joined high score table.
const HighscoreKey = "Highscore"

// DefaultHighscores seeds the table the first time it is requested.
const DefaultHighscores = "Darren@5@Dawn@4@David@3@Steven@2@Susan@1"

// Game replies. Peers match these byte for byte, misspelling included.
const (
	replyNotInterpreted   = "Game message not interpreted correctly"
	replyStartSlave       = "startGameSlave"
	replyMasterMissing    = "MasterPeerNotConnected"
	replyHighscoreSet     = "location set"
	replyHighscoreCreated = "server received request to update highscrore table."

	// GameReset clears the peers but peers expect the generic reply.
	replyReset = replyNotInterpreted
)

// gameState holds the peers registered by a MasterPeer message. It is shared
// by every connection of the dispatcher.
type gameState struct {
	mu     sync.Mutex
	master net.IP
	slave  net.IP
}

func (g *gameState) set(master, slave net.IP) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.master, g.slave = master, slave
}

func (g *gameState) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.master, g.slave = nil, nil
}

func (g *gameState) hasMaster() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.master != nil
}

func (d *Dispatcher) handleGame(out *Outcome, req *protocol.GameRequest) {
	out.Request = req
	out.Protocol = "game"
	out.Operation = req.Command.String()
	out.Result = ResultGame
	out.logf("Extracted data from the client message: %s", req.Summary())

	reply := replyNotInterpreted
	recognized := true

	switch req.Command {
	case protocol.GameMasterPeer:
		if len(req.Fields) < 3 {
			recognized = false
			break
		}
		master, slave := net.ParseIP(req.Fields[0]), net.ParseIP(req.Fields[1])
		if master == nil || slave == nil {
			recognized = false
			break
		}
		d.game.set(master, slave)
		reply = "serverSet@MasterPeerIP:" + master.String() + "@SlavePeerIP:" + slave.String()
		out.logf("Server registered master peer %s and slave peer %s", master, slave)

	case protocol.GameReset:
		d.game.reset()
		reply = replyReset
		out.logf("Server cleared the registered peers")

	case protocol.GameUpdateHighScore:
		if len(req.Fields) < 2 {
			recognized = false
			break
		}
		table := strings.Join(req.Fields[1:], protocol.GameSeparator)
		reply = d.storeHighscores(out, table)

	case protocol.GameRetrieveHighScore:
		reply = d.retrieveHighscores(out)

	case protocol.GameConnected:
		if d.game.hasMaster() {
			reply = replyStartSlave
		} else {
			reply = replyMasterMissing
		}

	default:
		recognized = false
	}

	if !recognized {
		out.Result = ResultUnrecognized
		logger.Error("Could not interpret game message: %q", strings.TrimSpace(req.Raw))
	}
	out.Reply = protocol.EncodeGame(reply)
}

func (d *Dispatcher) storeHighscores(out *Outcome, table string) string {
	if d.store.Contains(HighscoreKey) && d.store.Set(HighscoreKey, table) == nil {
		out.logf("Server set the highscore table to: %s", table)
		return replyHighscoreSet
	}
	if d.store.Add(HighscoreKey, table) {
		out.logf("Server found no highscore table and created one: %s", table)
		return replyHighscoreCreated
	}
	_ = d.store.Set(HighscoreKey, table)
	out.logf("Server set the highscore table to: %s", table)
	return replyHighscoreSet
}

func (d *Dispatcher) retrieveHighscores(out *Outcome) string {
	if table, err := d.store.Get(HighscoreKey); err == nil {
		out.logf("Server returned the highscore table")
		return "HighscoreFound@" + table
	}

	if !d.store.Add(HighscoreKey, DefaultHighscores) {
		table, _ := d.store.Get(HighscoreKey)
		return "HighscoreFound@" + table
	}
	out.logf("Server found no highscore table and created the default")
	return "NoHighscoreFound@" + DefaultHighscores
}
