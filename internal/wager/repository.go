package wager

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-wager-escrow/internal/escrow"
)

// Repository persists terminal escrow records to Postgres. Redis holds the
// hot state; this is the durable audit copy of how each match ended.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the terminal state of one match.
func (r *Repository) SaveResult(ctx context.Context, rec *escrow.Record, s *escrow.Settlement) error {
	if r == nil || r.db == nil || rec == nil || s == nil {
		return nil
	}

	payoutsRaw, _ := json.Marshal(s.Payouts)

	q := `INSERT INTO escrow_matches (
	    room_id, player_a, player_b, stake_amount, total_deposited,
	    phase, outcome, reason, fee, dust, payouts, move_count,
	    created_at, started_at, settled_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    player_a=EXCLUDED.player_a,
	    player_b=EXCLUDED.player_b,
	    stake_amount=EXCLUDED.stake_amount,
	    total_deposited=EXCLUDED.total_deposited,
	    phase=EXCLUDED.phase,
	    outcome=EXCLUDED.outcome,
	    reason=EXCLUDED.reason,
	    fee=EXCLUDED.fee,
	    dust=EXCLUDED.dust,
	    payouts=EXCLUDED.payouts,
	    move_count=EXCLUDED.move_count,
	    created_at=EXCLUDED.created_at,
	    started_at=EXCLUDED.started_at,
	    settled_at=EXCLUDED.settled_at`

	_, err := r.db.ExecContext(ctx, q,
		rec.RoomID,
		rec.PlayerA, rec.PlayerB,
		rec.StakeAmount, rec.TotalDeposited,
		string(rec.Phase), string(rec.Outcome), string(s.Reason),
		s.Fee, s.Dust, string(payoutsRaw), int64(rec.MoveCount),
		nullableUnix(rec.CreatedAt), nullableUnix(rec.StartedAt), nullableUnix(rec.SettledAt),
	)
	return err
}

func nullableUnix(ts int64) sql.NullTime {
	if ts == 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Unix(ts, 0).UTC(), Valid: true}
}
