package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"gridplace.ai/internal/protocol"
	"gridplace.ai/internal/sim/catalogs"
	"gridplace.ai/internal/sim/placement"
)

type Option func(*Server)

func WithGridID(id string) Option { return func(s *Server) { s.gridID = id } }

// WithCatalog advertises the item catalog in WELCOME.
func WithCatalog(items *catalogs.ItemCatalog) Option { return func(s *Server) { s.items = items } }

// WithMaxInflight caps concurrent PLACE requests per connection.
func WithMaxInflight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInflight = n
		}
	}
}

type Server struct {
	orch *placement.Orchestrator
	log  *log.Logger

	gridID      string
	items       *catalogs.ItemCatalog
	maxInflight int

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	conns  map[*websocket.Conn]struct{}
	wg     sync.WaitGroup
}

func NewServer(o *placement.Orchestrator, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		orch:        o,
		log:         logger,
		gridID:      "grid_1",
		maxInflight: 8,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conns = map[*websocket.Conn]struct{}{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops every session and waits until their in-flight requests have
// finished. No session touches the orchestrator after Close returns.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	s.cancel()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !s.track(conn) {
			return
		}
		defer s.untrack(conn)

		if err := writeJSON(conn, s.welcome()); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		out := make(chan []byte, 64)
		var writerDone sync.WaitGroup
		writerDone.Add(1)
		go func() {
			defer writerDone.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		c := &session{srv: s, ctx: ctx, out: out, sem: make(chan struct{}, s.maxInflight)}
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			c.handle(msg)
		}

		// In-flight places either finish or roll back on ctx; their results
		// are dropped once the writer is gone.
		cancel()
		c.wg.Wait()
		writerDone.Wait()
	}
}

func (s *Server) welcome() protocol.WelcomeMsg {
	g := s.orch.Grid()
	cfg := g.Config()
	lo, hi := g.CellRange()
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GridID:          s.gridID,
		GridParams: protocol.GridParams{
			CellSize:   cfg.CellSize,
			HalfExtent: [3]float64(cfg.HalfExtent),
			Epsilon:    cfg.Epsilon,
			MinCell:    lo.Array(),
			MaxCell:    hi.Array(),
		},
		Items: []string{},
	}
	if s.items != nil {
		w.Catalog = protocol.DigestRef{Digest: s.items.PaletteDigest, Count: len(s.items.Palette)}
		w.Items = append(w.Items, s.items.Palette...)
	}
	return w
}

type session struct {
	srv *Server
	ctx context.Context
	out chan<- []byte
	sem chan struct{}
	wg  sync.WaitGroup
}

func (c *session) handle(msg []byte) {
	if c.ctx.Err() != nil {
		return
	}
	base, err := protocol.Validate(msg)
	if err != nil {
		c.send(failure(base, protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		c.send(failure(base, protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}

	switch base.Type {
	case protocol.TypePlace:
		var m protocol.PlaceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(failure(base, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		select {
		case c.sem <- struct{}{}:
		default:
			c.send(failure(base, protocol.ErrGridBusy, "too many placements in flight"))
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			c.send(c.place(m))
		}()

	case protocol.TypeRemove:
		var m protocol.RemoveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(failure(base, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		item, ok := c.srv.orch.Remove(mgl64.Vec3(m.Pos))
		if !ok {
			c.send(failure(base, protocol.ErrNotFound, "nothing placed there"))
			return
		}
		c.send(protocol.ResultMsg{
			Type: protocol.TypeResult, ProtocolVersion: protocol.Version,
			ReqID: m.ReqID, For: protocol.TypeRemove, OK: true, Item: string(item),
		})

	case protocol.TypeQuery:
		var m protocol.QueryMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			c.send(failure(base, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		p, ok := c.srv.orch.PlacementAt(mgl64.Vec3(m.Pos))
		if !ok {
			c.send(failure(base, protocol.ErrNotFound, "nothing placed there"))
			return
		}
		c.send(placed(m.ReqID, protocol.TypeQuery, p))

	default:
		// WELCOME/RESULT are server -> client only.
		c.send(failure(base, protocol.ErrProtoBadRequest, "unexpected message type"))
	}
}

func (c *session) place(m protocol.PlaceMsg) protocol.ResultMsg {
	p, err := c.srv.orch.Place(c.ctx, placement.ItemRef(m.Item), mgl64.Vec3(m.Pos))
	if err != nil {
		code := placement.Code(err)
		if code == protocol.ErrInternal && c.srv.log != nil {
			c.srv.log.Printf("place %s: %v", m.Item, err)
		}
		return protocol.ResultMsg{
			Type: protocol.TypeResult, ProtocolVersion: protocol.Version,
			ReqID: m.ReqID, For: protocol.TypePlace, Code: code, Message: err.Error(),
		}
	}
	return placed(m.ReqID, protocol.TypePlace, p)
}

func (c *session) send(v protocol.ResultMsg) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	case <-c.ctx.Done():
	}
}

func failure(base protocol.BaseMessage, code, msg string) protocol.ResultMsg {
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           base.ReqID,
		Code:            code,
		Message:         msg,
	}
	switch base.Type {
	case protocol.TypePlace, protocol.TypeRemove, protocol.TypeQuery:
		res.For = base.Type
	}
	return res
}

func placed(reqID, forType string, p placement.Placement) protocol.ResultMsg {
	anchor := [3]float64(p.Anchor)
	pivot := p.Pivot.Array()
	cells := make([][3]int, len(p.Cells))
	for i, c := range p.Cells {
		cells[i] = c.Array()
	}
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		For:             forType,
		OK:              true,
		PlacementID:     p.ID,
		Item:            string(p.Item),
		Anchor:          &anchor,
		Pivot:           &pivot,
		Cells:           cells,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
