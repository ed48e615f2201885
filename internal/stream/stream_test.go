package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Compile-time interface check.
var _ storage.Recorder = (*Publisher)(nil)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages and secrets, and acks hello.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	return dropFirstServer(t, false)
}

// dropFirstServer is testServer, optionally closing the first connection
// right after acknowledging its hello.
func dropFirstServer(t *testing.T, dropFirst bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.secret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		first := conns.Add(1) == 1

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == TypeHello {
				data, _ := json.Marshal(AckMessage{Type: "ack", For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
				if dropFirst && first {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []Envelope
	secrets  []string
}

func (m *messageLog) add(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) secret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets = append(m.secrets, s)
}

func (m *messageLog) all() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) count(msgType string) int {
	n := 0
	for _, e := range m.all() {
		if e.Type == msgType {
			n++
		}
	}
	return n
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestInit_SendsHelloWithSecret(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	p := New(Config{URL: wsURL(srv), Secret: "s3cret", Service: "battlecore", Version: "test"}, nil)
	require.NoError(t, p.Init())
	defer p.Close()

	msgs := ml.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, TypeHello, msgs[0].Type)

	var hello HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, "battlecore", hello.Service)

	ml.mu.Lock()
	assert.Equal(t, []string{"s3cret"}, ml.secrets)
	ml.mu.Unlock()
}

func TestInit_DialFailure(t *testing.T) {
	p := New(Config{URL: "ws://127.0.0.1:1/feed"}, nil)
	assert.Error(t, p.Init())
	assert.False(t, p.Connected())
	_ = p.Close()
}

func TestInit_RejectsNonWebSocketURL(t *testing.T) {
	p := New(Config{URL: "http://127.0.0.1/feed"}, nil)
	assert.ErrorContains(t, p.Init(), "scheme")
}

func TestRecordBattle_BeforeInit(t *testing.T) {
	p := New(Config{}, nil)
	assert.Error(t, p.RecordBattle(&core.BattleRecord{ID: "b1"}))
	assert.Zero(t, p.Dropped())
	assert.NoError(t, p.Close())
}

func TestReconnect_ReplaysHelloAndDelivers(t *testing.T) {
	srv, ml := dropFirstServer(t, true)
	defer srv.Close()

	p := New(Config{URL: wsURL(srv), Secret: "k"}, nil)
	require.NoError(t, p.Init())
	defer p.Close()

	require.Eventually(t, func() bool {
		return ml.count(TypeHello) == 2 && p.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.RecordBattle(&core.BattleRecord{ID: "b2", AccountID: "acc"}))
	assert.Eventually(t, func() bool {
		return ml.count(TypeBattle) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ml.mu.Lock()
	assert.Equal(t, []string{"k", "k"}, ml.secrets)
	ml.mu.Unlock()
}

func TestClose_FlushesAndDropsLaterSends(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	p := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, p.Init())
	require.NoError(t, p.RecordBattle(&core.BattleRecord{ID: "b1"}))
	require.NoError(t, p.Close())

	assert.Eventually(t, func() bool { return ml.count(TypeBattle) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), p.Sent())
	assert.False(t, p.Connected())

	require.NoError(t, p.RecordBattle(&core.BattleRecord{ID: "b2"}))
	assert.Equal(t, int64(1), p.Dropped())
}

func TestRecordBattle_SendsBattleAndLevelUps(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	p := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, p.Init())
	defer p.Close()

	r := &core.BattleRecord{
		ID:        "b1",
		AccountID: "acc",
		Kind:      core.BattlePvE,
		Victory:   true,
		Experience: []core.ExperienceDelta{
			{CombatantID: "hero", Granted: 150, LevelsGained: 1, Level: 2},
			{CombatantID: "squire", Granted: 20, LevelsGained: 0, Level: 1},
			{Granted: 150, LevelsGained: 1, Level: 2},
		},
	}
	require.NoError(t, p.RecordBattle(r))

	assert.Eventually(t, func() bool {
		return ml.count(TypeBattle) == 1 && ml.count(TypeLevelUp) == 2
	}, 2*time.Second, 10*time.Millisecond)

	for _, e := range ml.all() {
		if e.Type != TypeBattle {
			continue
		}
		var got core.BattleRecord
		require.NoError(t, json.Unmarshal(e.Payload, &got))
		assert.Equal(t, "b1", got.ID)
		assert.True(t, got.Victory)
	}
	assert.Equal(t, int64(0), p.Dropped())
}

func TestClose_Idempotent(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	p := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, p.Init())
	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope(TypeLevelUp, LevelUpPayload{BattleID: "b1", Level: 5, Gained: 2})
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeLevelUp, decoded.Type)

	var lp LevelUpPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &lp))
	assert.Equal(t, "b1", lp.BattleID)
	assert.Equal(t, 5, lp.Level)
}

func TestClose_WhileReconnectingCountsBufferedAsDropped(t *testing.T) {
	var attempts atomic.Int32
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		data, _ := json.Marshal(AckMessage{Type: "ack", For: TypeHello})
		_ = c.WriteMessage(ws.TextMessage, data)
	}))
	defer srv.Close()

	p := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, p.Init())

	// a refused second attempt means the feed is redialing
	require.Eventually(t, func() bool { return attempts.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, p.RecordBattle(&core.BattleRecord{ID: id}))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, int64(3), p.Dropped())
	assert.Zero(t, p.Sent())
}
