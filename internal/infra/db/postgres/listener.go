package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/ports/stream"
)

var _ stream.ChangeStream = (*Listener)(nil)

// Listener turns Postgres LISTEN/NOTIFY into per-account change streams. A
// trigger on payment_history emits a JSON payload {table, op, new, old} on
// every update; the listener fans it out to subscribers keyed by user id.
// Delivery is at-least-once from the subscriber's point of view: after a
// reconnect the same update can be observed again.
type Listener struct {
	pool    *pgxpool.Pool
	channel string
	log     *zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan stream.ChangeEvent
}

func NewListener(pool *pgxpool.Pool, channel string, logger *zerolog.Logger) *Listener {
	lisLog := logger.With().Str("component", "PgListener").Str("channel", channel).Logger()
	return &Listener{
		pool:    pool,
		channel: channel,
		log:     &lisLog,
		subs:    make(map[string]map[int]chan stream.ChangeEvent),
	}
}

// Run holds a dedicated connection in LISTEN mode until ctx ends,
// reconnecting with backoff on connection loss.
func (l *Listener) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(err).Dur("backoff", backoff).Msg("listen connection lost; reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return err
	}
	l.log.Info().Msg("listening for change notifications")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var ev stream.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			l.log.Warn().Err(err).Str("payload", n.Payload).Msg("malformed change payload")
			continue
		}
		l.dispatch(ev)
	}
}

func (l *Listener) dispatch(ev stream.ChangeEvent) {
	userID := ev.Str("user_id")
	if userID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[userID] {
		select {
		case ch <- ev:
		default:
			// Slow consumer: drop rather than stall the whole fan-out. The
			// polling channel covers a dropped event.
			l.log.Warn().Str("user_id", userID).Msg("subscriber buffer full; event dropped")
		}
	}
}

// Subscribe registers an account-scoped stream. The cancel func releases it;
// the channel is closed on release.
func (l *Listener) Subscribe(ctx context.Context, userID string) (<-chan stream.ChangeEvent, func(), error) {
	ch := make(chan stream.ChangeEvent, 8)

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	if l.subs[userID] == nil {
		l.subs[userID] = make(map[int]chan stream.ChangeEvent)
	}
	l.subs[userID][id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if subs, ok := l.subs[userID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(l.subs, userID)
			}
		}
	}
	return ch, cancel, nil
}
