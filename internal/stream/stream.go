// Package stream publishes applied engagements over a WebSocket feed.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ironbanner/battlecore/pkg/core"
)

// Message type constants of the feed protocol.
const (
	TypeHello   = "hello"
	TypeBattle  = "battle"
	TypeLevelUp = "level_up"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload announces the engine instance.
type HelloPayload struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// LevelUpPayload is sent for every experience delta that gained levels.
type LevelUpPayload struct {
	BattleID    string `json:"battleId"`
	AccountID   string `json:"accountId"`
	CombatantID string `json:"combatantId,omitempty"`
	Level       int    `json:"level"`
	Gained      int    `json:"gained"`
}

// Config holds publisher settings.
type Config struct {
	URL     string
	Secret  string
	Service string
	Version string
}

// Publisher streams battle summaries. It implements storage.Recorder.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
	feed   *feed
}

// New creates a publisher. Nothing is dialed until Init.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Init connects and waits for the server to acknowledge hello.
func (p *Publisher) Init() error {
	hello, err := marshalEnvelope(TypeHello, HelloPayload{Service: p.cfg.Service, Version: p.cfg.Version})
	if err != nil {
		return err
	}
	f, err := newFeed(p.cfg.URL, p.cfg.Secret, hello, p.logger)
	if err != nil {
		return err
	}
	if err := f.start(); err != nil {
		return err
	}
	p.feed = f
	return nil
}

// Close flushes buffered messages and disconnects.
func (p *Publisher) Close() error {
	if p.feed != nil {
		p.feed.close()
	}
	return nil
}

// Connected reports whether the feed currently has a live connection.
func (p *Publisher) Connected() bool {
	return p.feed != nil && p.feed.connected.Load()
}

// Sent is the number of messages written to the server.
func (p *Publisher) Sent() int64 {
	if p.feed == nil {
		return 0
	}
	return p.feed.sent.Load()
}

// Dropped is the number of messages discarded on a full buffer or after
// close.
func (p *Publisher) Dropped() int64 {
	if p.feed == nil {
		return 0
	}
	return p.feed.dropped.Load()
}

// RecordBattle sends the battle and one level_up message per levelled
// combatant or account. Sends are fire-and-forget.
func (p *Publisher) RecordBattle(r *core.BattleRecord) error {
	if err := p.sendEnvelope(TypeBattle, r); err != nil {
		return err
	}
	for _, d := range r.Experience {
		if d.LevelsGained == 0 {
			continue
		}
		err := p.sendEnvelope(TypeLevelUp, LevelUpPayload{
			BattleID:    r.ID,
			AccountID:   r.AccountID,
			CombatantID: d.CombatantID,
			Level:       d.Level,
			Gained:      d.LevelsGained,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (p *Publisher) sendEnvelope(msgType string, payload any) error {
	if p.feed == nil {
		return errors.New("stream publisher not initialized")
	}
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	p.feed.send(data)
	return nil
}
