package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"gridplace.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		count    = flag.Int("n", 50, "number of requests to send")
		radius   = flag.Float64("radius", 8, "place within this distance of the origin (world units)")
		removePc = flag.Int("remove_pct", 30, "percent of requests that remove instead of place")
		every    = flag.Duration("every", 200*time.Millisecond, "delay between requests")
		seed     = flag.Int64("seed", 0, "rng seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil || w.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME, got %s", msg)
	}
	logger.Printf("WELCOME grid=%s cell_size=%v items=%v", w.GridID, w.GridParams.CellSize, w.Items)
	if len(w.Items) == 0 {
		logger.Fatalf("server advertises no items")
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	results := make(chan protocol.ResultMsg, 16)
	go func() {
		defer close(results)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil || r.Type != protocol.TypeResult {
				continue
			}
			results <- r
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var placed [][3]float64
	tick := time.NewTicker(*every)
	defer tick.Stop()
	sent := 0
	for {
		select {
		case <-stop:
			return
		case r, ok := <-results:
			if !ok {
				logger.Printf("connection closed")
				return
			}
			if r.OK {
				logger.Printf("%s %s ok item=%s id=%s cells=%d", r.ReqID, r.For, r.Item, r.PlacementID, len(r.Cells))
				if r.For == protocol.TypePlace && r.Anchor != nil {
					placed = append(placed, *r.Anchor)
				}
			} else {
				logger.Printf("%s %s %s: %s", r.ReqID, r.For, r.Code, r.Message)
			}
		case <-tick.C:
			if sent >= *count {
				continue
			}
			sent++
			reqID := fmt.Sprintf("bot-%d", sent)
			var req any
			if len(placed) > 0 && rng.Intn(100) < *removePc {
				i := rng.Intn(len(placed))
				pos := placed[i]
				placed = append(placed[:i], placed[i+1:]...)
				req = protocol.RemoveMsg{Type: protocol.TypeRemove, ProtocolVersion: protocol.Version, ReqID: reqID, Pos: pos}
			} else {
				pos := [3]float64{(rng.Float64()*2 - 1) * *radius, 0, (rng.Float64()*2 - 1) * *radius}
				item := w.Items[rng.Intn(len(w.Items))]
				req = protocol.PlaceMsg{Type: protocol.TypePlace, ProtocolVersion: protocol.Version, ReqID: reqID, Item: item, Pos: pos}
			}
			if err := conn.WriteJSON(req); err != nil {
				logger.Printf("send: %v", err)
				return
			}
		}
	}
}
