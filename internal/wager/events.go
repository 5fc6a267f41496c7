package wager

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/park285/chess-wager-escrow/internal/escrow"
)

// Audit event types. Move detail deliberately lives here and not in the hot
// record: the record keeps only a counter and a timestamp, the stream keeps
// history.
const (
	EventTypeCreated      = "escrow.created"
	EventTypeJoined       = "escrow.joined"
	EventTypeDeposited    = "escrow.deposited"
	EventTypeStarted      = "escrow.started"
	EventTypeMoveRecorded = "escrow.move_recorded"
	EventTypeSettled      = "escrow.settled"
	EventTypeCancelled    = "escrow.cancelled"
)

// Event is one entry of the append-only audit stream.
type Event struct {
	ID    string            `json:"id"`
	Type  string            `json:"type"`
	Room  string            `json:"room"`
	At    int64             `json:"at"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Emitter receives audit events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

func newEvent(eventType, room string, at int64, attrs map[string]string) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  eventType,
		Room:  room,
		At:    at,
		Attrs: attrs,
	}
}

func newCreatedEvent(r *escrow.Record) Event {
	return newEvent(EventTypeCreated, r.RoomID, r.CreatedAt, map[string]string{
		"player_a":   r.PlayerA,
		"stake":      strconv.FormatInt(r.StakeAmount, 10),
		"time_limit": strconv.FormatInt(r.TimeLimit, 10),
		"fee_bps":    strconv.FormatInt(r.FeeBps, 10),
	})
}

func newJoinedEvent(r *escrow.Record, at int64) Event {
	return newEvent(EventTypeJoined, r.RoomID, at, map[string]string{
		"player_b": r.PlayerB,
	})
}

func newDepositedEvent(r *escrow.Record, depositor string, at int64) Event {
	return newEvent(EventTypeDeposited, r.RoomID, at, map[string]string{
		"player": depositor,
		"amount": strconv.FormatInt(r.StakeAmount, 10),
		"total":  strconv.FormatInt(r.TotalDeposited, 10),
	})
}

func newStartedEvent(r *escrow.Record) Event {
	return newEvent(EventTypeStarted, r.RoomID, r.StartedAt, map[string]string{
		"player_a": r.PlayerA,
		"player_b": r.PlayerB,
		"vault":    strconv.FormatInt(r.TotalDeposited, 10),
	})
}

// newMoveEvent carries the full move-log tuple for the audit trail.
func newMoveEvent(receipt *escrow.MoveReceipt) Event {
	return newEvent(EventTypeMoveRecorded, receipt.RoomID, receipt.Timestamp, map[string]string{
		"mover":       receipt.Mover,
		"label":       receipt.Label,
		"fingerprint": receipt.Fingerprint,
		"move_count":  strconv.FormatUint(uint64(receipt.MoveCount), 10),
	})
}

func newSettledEvent(r *escrow.Record, s *escrow.Settlement) Event {
	attrs := map[string]string{
		"outcome":    string(s.Outcome),
		"reason":     string(s.Reason),
		"fee":        strconv.FormatInt(s.Fee, 10),
		"dust":       strconv.FormatInt(s.Dust, 10),
		"move_count": strconv.FormatUint(uint64(r.MoveCount), 10),
	}
	for _, p := range s.Payouts {
		attrs["payout:"+p.Account] = strconv.FormatInt(p.Amount, 10)
	}
	return newEvent(EventTypeSettled, r.RoomID, r.SettledAt, attrs)
}

func newCancelledEvent(r *escrow.Record, s *escrow.Settlement, caller string) Event {
	attrs := map[string]string{
		"cancelled_by": caller,
	}
	for _, p := range s.Payouts {
		attrs["refund:"+p.Account] = strconv.FormatInt(p.Amount, 10)
	}
	return newEvent(EventTypeCancelled, r.RoomID, r.SettledAt, attrs)
}
