// Package rules tracks chess legality on the client side. The escrow server
// treats move labels as opaque; a Tracker lets callers validate moves and
// derive board fingerprints before submitting them.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Verdict summarizes the board after a move.
type Verdict string

const (
	VerdictOngoing   Verdict = "ONGOING"
	VerdictCheckmate Verdict = "CHECKMATE"
	VerdictStalemate Verdict = "STALEMATE"
	VerdictDraw      Verdict = "DRAW"
)

// Move is one applied move in both notations.
type Move struct {
	UCI     string
	SAN     string
	Verdict Verdict
	// WhiteWon is meaningful only when Verdict is VerdictCheckmate.
	WhiteWon bool
}

// Tracker replays a single game from the standard starting position.
type Tracker struct {
	game *nchess.Game
}

func NewTracker() *Tracker {
	return &Tracker{game: nchess.NewGame()}
}

// Apply accepts a move in UCI or SAN and advances the game. The label stored
// in the audit stream is the SAN form.
func (t *Tracker) Apply(raw string) (*Move, error) {
	rawMove := strings.TrimSpace(raw)
	if rawMove == "" {
		return nil, fmt.Errorf("empty move")
	}

	pos := t.game.Position()
	uci := strings.ToLower(rawMove)

	var applied *nchess.Move
	if mv, derr := (nchess.UCINotation{}).Decode(pos, uci); derr == nil {
		if err := t.game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("illegal move %q: %w", rawMove, err)
		}
		applied = mv
	} else {
		if err := t.game.PushNotationMove(rawMove, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("illegal move %q: %w", rawMove, err)
		}
		applied = lastMove(t.game)
		if applied == nil {
			return nil, fmt.Errorf("illegal move %q", rawMove)
		}
	}

	out := &Move{
		UCI:     applied.String(),
		SAN:     nchess.AlgebraicNotation{}.Encode(pos, applied),
		Verdict: VerdictOngoing,
	}
	switch t.game.Outcome() {
	case nchess.WhiteWon:
		out.Verdict = VerdictCheckmate
		out.WhiteWon = true
	case nchess.BlackWon:
		out.Verdict = VerdictCheckmate
	case nchess.Draw:
		if t.game.Method() == nchess.Stalemate {
			out.Verdict = VerdictStalemate
		} else {
			out.Verdict = VerdictDraw
		}
	}
	return out, nil
}

// FEN returns the current position.
func (t *Tracker) FEN() string { return t.game.FEN() }

// WhiteToMove reports whose turn it is.
func (t *Tracker) WhiteToMove() bool { return t.game.Position().Turn() == nchess.White }

// Fingerprint is a stable digest of the current position, suitable for the
// move-log fingerprint field.
func (t *Tracker) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.game.FEN()))
	return hex.EncodeToString(sum[:])
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}
