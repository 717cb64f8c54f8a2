package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
)

// feedBufSize is the inbound batch buffer between the read loop and the
// fan-out pump.
const feedBufSize = 16

// WSFeed implements Feed over a websocket connection to the live capacity
// feed. One connection per feed; SubscribeCapacity replaces any prior one.
type WSFeed struct {
	url    string
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

type subscribeMessage struct {
	Action      string   `json:"action"`
	HospitalIDs []string `json:"hospital_ids"`
}

// NewWSFeed builds a feed client for the given websocket URL.
func NewWSFeed(url string, logger zerolog.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (f *WSFeed) SubscribeCapacity(ctx context.Context, hospitalIDs []string) (<-chan []*hospital.Capacity, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial capacity feed: %v", hospital.ErrSourceUnavailable, err)
	}
	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", HospitalIDs: hospitalIDs}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: subscribe capacity feed: %v", hospital.ErrSourceUnavailable, err)
	}

	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.conn = conn
	f.mu.Unlock()

	out := make(chan []*hospital.Capacity, feedBufSize)

	// Close the connection when the subscription context ends so the read
	// loop unblocks deterministically.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go f.readLoop(ctx, conn, out)
	return out, nil
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- []*hospital.Capacity) {
	defer close(out)
	for {
		var batch []*hospital.Capacity
		if err := conn.ReadJSON(&batch); err != nil {
			if ctx.Err() == nil {
				f.logger.Error().Err(err).Msg("capacity feed read failed")
			}
			return
		}
		if len(batch) == 0 {
			continue
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the current connection, if any.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}
