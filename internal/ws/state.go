package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/openscb/internal/app"
	"github.com/coreman2200/openscb/internal/board"
	diag "github.com/coreman2200/openscb/internal/diagnostics"
	"github.com/coreman2200/openscb/internal/tests"
)

const writeWait = 200 * time.Millisecond

var errBadCommand = errors.New("ws: unknown command")

// State serves board telemetry, diagnostics and control over websockets.
type State struct {
	mu          sync.Mutex
	core        *app.Core
	frameID     uint64
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
	unsubscribe []func()
}

func NewState(core *app.Core) *State {
	s := &State{
		core:        core,
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
	}
	s.unsubscribe = append(s.unsubscribe,
		core.Board.Subscribe(s.onBoard),
		core.SubscribeDiagnostics(s.pushDiag),
	)
	return s
}

// Close drops the subscriptions and every open socket.
func (s *State) Close() {
	for _, u := range s.unsubscribe {
		u()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
	}
	for c := range s.diagClients {
		c.Close()
	}
}

func (s *State) onBoard(e board.Event) {
	switch e.Kind {
	case board.PositionUpdated, board.InputUpdated:
		s.broadcastPosition()
	case board.Connected, board.SettingsUpdated, board.EnabledChanged:
		s.broadcastTopology()
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// register keeps conn in set until the peer goes away.
func (s *State) register(conn *websocket.Conn, set map[*websocket.Conn]bool) {
	s.mu.Lock()
	set[conn] = true
	s.mu.Unlock()
	go func() {
		defer func() {
			s.mu.Lock()
			delete(set, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandlePositionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	write(conn, s.topology())
	s.mu.Unlock()
	s.register(conn, s.clients)
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.register(conn, s.diagClients)
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		err = json.Unmarshal(data, &cmd)
		if err == nil {
			err = s.Apply(cmd)
		}
		resp := s.status()
		if err != nil {
			resp["error"] = err.Error()
		}
		b, _ := json.Marshal(resp)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

// Command is one control message. Exactly one field is expected.
type Command struct {
	Play     *int   `json:"play,omitempty"`
	Loop     bool   `json:"loop,omitempty"`
	Stop     bool   `json:"stop,omitempty"`
	PlaySlot *int   `json:"playSlot,omitempty"`
	Goal     *Goal  `json:"goal,omitempty"`
	Refresh  bool   `json:"refresh,omitempty"`
	RunTest  string `json:"runTest,omitempty"`
}

type Goal struct {
	Out   int     `json:"out"`
	Value float64 `json:"value"`
}

// Apply runs cmd against the core.
func (s *State) Apply(cmd Command) error {
	b, ed := s.core.Board, s.core.Editor
	switch {
	case cmd.Play != nil:
		if err := ed.SetCurrent(*cmd.Play); err != nil {
			return err
		}
		return ed.Play(cmd.Loop, time.Now())
	case cmd.Stop:
		return ed.Stop()
	case cmd.PlaySlot != nil:
		return b.PlaySequenceSlot(*cmd.PlaySlot)
	case cmd.Goal != nil:
		return b.SetOutputGoal(cmd.Goal.Out, cmd.Goal.Value)
	case cmd.Refresh:
		return b.UpdateValues()
	case cmd.RunTest != "":
		k, err := tests.ParseKind(cmd.RunTest)
		if err != nil {
			s.core.Publish(diag.Diagnostic{
				Time: time.Now(), Severity: diag.Warn, Code: "TEST.UNKNOWN", Summary: "Unknown test name",
				Evidence: map[string]any{"name": cmd.RunTest},
			})
			return err
		}
		s.core.Conductor.RunTest(k)
		return nil
	}
	return errBadCommand
}

func (s *State) status() map[string]any {
	b := s.core.Board
	return map[string]any{
		"connected": b.Connected(),
		"firmware":  b.Version(),
		"outputs":   b.OutputCount(),
		"inputs":    b.InputCount(),
		"slot":      s.core.Editor.Slot(),
		"player":    s.core.Editor.State(),
		"uptime_s":  time.Since(s.core.Started).Seconds(),
	}
}

type output struct {
	Name    string  `json:"name"`
	Color   string  `json:"color"`
	Enabled bool    `json:"enabled"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
}

func (s *State) topology() []byte {
	b := s.core.Board
	outs := make([]output, b.OutputCount())
	for i := range outs {
		left, right := b.OutputRange(i)
		outs[i] = output{Name: b.OutputName(i), Color: b.OutputColor(i), Enabled: b.OutputEnabled(i), Left: left, Right: right}
	}
	top := map[string]any{
		"outputs": outs,
		"inputs":  b.InputCount(),
	}
	data, _ := json.Marshal(top)
	return data
}

func (s *State) broadcastTopology() {
	data := s.topology()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		write(c, data)
	}
}

func (s *State) broadcastPosition() {
	type frame struct {
		T       int64     `json:"t"`
		FrameID uint64    `json:"frame_id"`
		Outputs []float64 `json:"outputs"`
		Inputs  []float64 `json:"inputs"`
	}
	b := s.core.Board
	outputs, inputs := b.OutputValues(), b.InputValues()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameID++
	data, _ := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: s.frameID, Outputs: outputs, Inputs: inputs})
	for c := range s.clients {
		write(c, data)
	}
}

func (s *State) pushDiag(d diag.Diagnostic) {
	data, _ := json.Marshal(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.diagClients {
		write(c, data)
	}
}

func write(c *websocket.Conn, data []byte) {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Msg("ws write")
	}
}
