package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-wager-escrow/internal/escrow"
	"github.com/park285/chess-wager-escrow/internal/obslog"
)

// Store-level errors, distinct from the core state-machine errors.
var (
	ErrInvalidArgument   = errors.New("invalid parameters")
	ErrRoomExists        = errors.New("room already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrConflict          = errors.New("concurrent operation detected, retry")
	ErrInsufficientFunds = errors.New("insufficient account balance")
)

// Settled records are kept in Redis for a week after the vault closes; the
// Postgres repository is the long-term home.
const ttlSettled = 7 * 24 * time.Hour

// Manager custodies escrow records, vault balances and player accounts in
// Redis. Each mutating operation runs under WATCH on the room key and
// commits the record plus every balance delta in one transaction, so
// operations on the same room serialize and never interleave; different
// rooms are fully independent.
type Manager struct {
	rdb     *redis.Client
	repo    *Repository
	emitter Emitter
	params  escrow.Params
	nowFn   func() int64
}

func NewManager(redisURL string, params escrow.Params) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required for wager manager")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Manager{
		rdb:     rdb,
		emitter: NoopEmitter{},
		params:  params,
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// AttachRepository wires a database repository for persisting final results.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

// SetEmitter configures the audit event sink. Nil resets to a no-op.
func (m *Manager) SetEmitter(e Emitter) {
	if e == nil {
		m.emitter = NoopEmitter{}
		return
	}
	m.emitter = e
}

// SetNowFunc overrides the clock, for deterministic timeout tests.
func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

func (m *Manager) now() int64 { return m.nowFn() }

func (m *Manager) emit(ev Event) {
	if m.emitter != nil {
		m.emitter.Emit(ev)
	}
}

// Create initialises a new escrow record in its own room. The room key is
// claimed with SET NX so two racing creators cannot both win.
func (m *Manager) Create(ctx context.Context, roomID, creator string, stake, timeLimitSec int64) (*escrow.Record, error) {
	roomID = strings.TrimSpace(roomID)
	creator = strings.TrimSpace(creator)
	if roomID == "" || creator == "" {
		return nil, ErrInvalidArgument
	}
	rec, err := escrow.NewRecord(roomID, creator, stake, timeLimitSec, m.params, m.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	ok, err := m.rdb.SetNX(ctx, gameKey(roomID), raw, 0).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoomExists
	}
	if err := m.indexParticipant(ctx, roomID, creator); err != nil {
		return nil, err
	}
	obslog.L().Info("escrow_create",
		zap.String("room_id", roomID),
		zap.String("player_a", creator),
		zap.Int64("stake", stake),
		zap.Int64("time_limit", timeLimitSec),
	)
	m.emit(newCreatedEvent(rec))
	return rec, nil
}

// Join registers the second participant.
func (m *Manager) Join(ctx context.Context, roomID, caller string) (*escrow.Record, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, ErrInvalidArgument
	}
	now := m.now()
	rec, err := m.update(ctx, roomID, nil, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		return rec.Join(caller, now)
	})
	if err != nil {
		return nil, err
	}
	if err := m.indexParticipant(ctx, roomID, caller); err != nil {
		return nil, err
	}
	obslog.L().Info("escrow_join", zap.String("room_id", roomID), zap.String("player_b", caller))
	m.emit(newJoinedEvent(rec, now))
	return rec, nil
}

// Deposit debits the caller's account and credits the room vault in the same
// transaction that flips the deposit flag. The payer's account key is
// watched too, so a concurrent spend aborts rather than overdrawing.
func (m *Manager) Deposit(ctx context.Context, roomID, caller string) (*escrow.Record, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, ErrInvalidArgument
	}
	now := m.now()
	var started bool
	rec, err := m.update(ctx, roomID, []string{acctKey(caller)}, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		balance, err := readBalance(ctx, tx, acctKey(caller))
		if err != nil {
			return err
		}
		if balance < rec.StakeAmount {
			return ErrInsufficientFunds
		}
		started, err = rec.Deposit(caller, now)
		if err != nil {
			return err
		}
		pipe.DecrBy(ctx, acctKey(caller), rec.StakeAmount)
		pipe.IncrBy(ctx, vaultKey(roomID), rec.StakeAmount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("escrow_deposit",
		zap.String("room_id", roomID),
		zap.String("player", caller),
		zap.Int64("amount", rec.StakeAmount),
		zap.Bool("started", started),
	)
	m.emit(newDepositedEvent(rec, caller, now))
	if started {
		obslog.L().Info("escrow_started", zap.String("room_id", roomID), zap.Int64("vault", rec.TotalDeposited))
		m.emit(newStartedEvent(rec))
	}
	return rec, nil
}

// RecordMove advances the turn counter and emits the full move tuple to the
// audit stream. The record itself stores nothing but the counter and the
// activity timestamp.
func (m *Manager) RecordMove(ctx context.Context, roomID, caller, label, fingerprint string) (*escrow.Record, *escrow.MoveReceipt, error) {
	caller = strings.TrimSpace(caller)
	label = strings.TrimSpace(label)
	if caller == "" || label == "" {
		return nil, nil, ErrInvalidArgument
	}
	now := m.now()
	var receipt *escrow.MoveReceipt
	rec, err := m.update(ctx, roomID, nil, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		var err error
		receipt, err = rec.RecordMove(caller, label, fingerprint, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	obslog.L().Info("escrow_move",
		zap.String("room_id", roomID),
		zap.String("mover", caller),
		zap.String("label", label),
		zap.Uint32("move_count", receipt.MoveCount),
	)
	m.emit(newMoveEvent(receipt))
	return rec, receipt, nil
}

// DeclareResult settles the match with an explicitly declared outcome and
// pays out the vault atomically.
func (m *Manager) DeclareResult(ctx context.Context, roomID, caller string, outcome escrow.Outcome, reason escrow.EndReason) (*escrow.Record, *escrow.Settlement, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, nil, ErrInvalidArgument
	}
	now := m.now()
	var settlement *escrow.Settlement
	rec, err := m.update(ctx, roomID, nil, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		var err error
		settlement, err = rec.DeclareResult(caller, outcome, reason, now)
		if err != nil {
			return err
		}
		m.applySettlement(ctx, pipe, rec, settlement)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	m.finishSettled(ctx, rec, settlement, caller)
	return rec, settlement, nil
}

// ForceTimeout settles an inactive match. Anyone may trigger it; the
// forfeiting side is computed from move-count parity, never trusted from the
// caller.
func (m *Manager) ForceTimeout(ctx context.Context, roomID, caller string) (*escrow.Record, *escrow.Settlement, error) {
	now := m.now()
	var settlement *escrow.Settlement
	rec, err := m.update(ctx, roomID, nil, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		var err error
		settlement, err = rec.ForceTimeout(now)
		if err != nil {
			return err
		}
		m.applySettlement(ctx, pipe, rec, settlement)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	m.finishSettled(ctx, rec, settlement, strings.TrimSpace(caller))
	return rec, settlement, nil
}

// Cancel aborts a never-started match and refunds whatever was deposited.
func (m *Manager) Cancel(ctx context.Context, roomID, caller string) (*escrow.Record, *escrow.Settlement, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, nil, ErrInvalidArgument
	}
	now := m.now()
	var refund *escrow.Settlement
	rec, err := m.update(ctx, roomID, nil, func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error {
		var err error
		refund, err = rec.Cancel(caller, now)
		if err != nil {
			return err
		}
		m.applySettlement(ctx, pipe, rec, refund)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	obslog.L().Info("escrow_cancel",
		zap.String("room_id", roomID),
		zap.String("cancelled_by", caller),
		zap.Int64("refunded", refund.Total()),
	)
	m.emit(newCancelledEvent(rec, refund, caller))
	m.persistFinal(ctx, rec, refund)
	return rec, refund, nil
}

// Get returns the current record, or ErrRoomNotFound.
func (m *Manager) Get(ctx context.Context, roomID string) (*escrow.Record, error) {
	raw, err := m.rdb.Get(ctx, gameKey(strings.TrimSpace(roomID))).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec escrow.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// VaultBalance returns the custodial balance held for a room. Zero after
// the record turns terminal.
func (m *Manager) VaultBalance(ctx context.Context, roomID string) (int64, error) {
	raw, err := m.rdb.Get(ctx, vaultKey(strings.TrimSpace(roomID))).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// AccountBalance returns a player account balance.
func (m *Manager) AccountBalance(ctx context.Context, id string) (int64, error) {
	raw, err := m.rdb.Get(ctx, acctKey(strings.TrimSpace(id))).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// CreditAccount tops up a player account. This is the integration hook for
// the external payment layer; the escrow itself only ever moves funds
// between accounts and vaults.
func (m *Manager) CreditAccount(ctx context.Context, id string, amount int64) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" || amount <= 0 {
		return 0, ErrInvalidArgument
	}
	balance, err := m.rdb.IncrBy(ctx, acctKey(id), amount).Result()
	if err != nil {
		return 0, err
	}
	obslog.L().Info("account_credit", zap.String("account", id), zap.Int64("amount", amount), zap.Int64("balance", balance))
	return balance, nil
}

// RoomsByUser lists the rooms a player participates in.
func (m *Manager) RoomsByUser(ctx context.Context, id string) ([]string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return m.rdb.SMembers(ctx, idxUserKey(id)).Result()
}

// update runs one serialized mutation of a room record: load under WATCH,
// apply the pure transition, commit record plus balance deltas in one
// transaction. A concurrent writer aborts the exec and surfaces ErrConflict.
func (m *Manager) update(ctx context.Context, roomID string, extraWatch []string, apply func(tx *redis.Tx, rec *escrow.Record, pipe redis.Pipeliner) error) (*escrow.Record, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, ErrInvalidArgument
	}
	key := gameKey(roomID)
	var out *escrow.Record
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var rec escrow.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		if err := apply(tx, &rec, pipe); err != nil {
			return err
		}
		newRaw, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		if rec.Phase.Terminal() {
			pipe.Set(ctx, key, newRaw, ttlSettled)
		} else {
			pipe.Set(ctx, key, newRaw, 0)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = &rec
		return nil
	}, append([]string{key}, extraWatch...)...)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applySettlement queues every transfer out of the vault and closes it. The
// settlement drains the vault exactly, so the key is simply deleted in the
// same transaction that flips the phase.
func (m *Manager) applySettlement(ctx context.Context, pipe redis.Pipeliner, rec *escrow.Record, s *escrow.Settlement) {
	for _, p := range s.Payouts {
		pipe.IncrBy(ctx, acctKey(p.Account), p.Amount)
	}
	if collected := s.Fee + s.Dust; collected > 0 {
		pipe.IncrBy(ctx, acctKey(rec.FeeCollector), collected)
	}
	pipe.Del(ctx, vaultKey(rec.RoomID))
}

func (m *Manager) finishSettled(ctx context.Context, rec *escrow.Record, s *escrow.Settlement, caller string) {
	obslog.L().Info("escrow_settle",
		zap.String("room_id", rec.RoomID),
		zap.String("outcome", string(s.Outcome)),
		zap.String("reason", string(s.Reason)),
		zap.String("caller", caller),
		zap.Int64("fee", s.Fee),
		zap.Int64("dust", s.Dust),
		zap.Uint32("move_count", rec.MoveCount),
	)
	m.emit(newSettledEvent(rec, s))
	m.persistFinal(ctx, rec, s)
}

// persistFinal saves terminal records to the repository if one is attached.
func (m *Manager) persistFinal(ctx context.Context, rec *escrow.Record, s *escrow.Settlement) {
	if m.repo == nil || rec == nil || !rec.Phase.Terminal() {
		return
	}
	if err := m.repo.SaveResult(ctx, rec, s); err != nil {
		obslog.L().Error("escrow_result_persist_error", zap.String("room_id", rec.RoomID), zap.Error(err))
		return
	}
	obslog.L().Info("escrow_result_persist", zap.String("room_id", rec.RoomID), zap.String("phase", string(rec.Phase)))
}

func (m *Manager) indexParticipant(ctx context.Context, roomID, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return m.rdb.SAdd(ctx, idxUserKey(id), roomID).Err()
}

func readBalance(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func gameKey(roomID string) string  { return "esc:game:" + strings.TrimSpace(roomID) }
func vaultKey(roomID string) string { return "esc:vault:" + strings.TrimSpace(roomID) }
func acctKey(id string) string      { return "esc:acct:" + strings.TrimSpace(id) }
func idxUserKey(id string) string   { return "esc:index:user:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
