package escrow

import "errors"

// Every rejection happens before any state mutation; an operation either
// applies completely or returns one of these.
var (
	ErrRoomIDTooLong            = errors.New("room id too long (max 32 bytes)")
	ErrInvalidStakeAmount       = errors.New("invalid stake amount")
	ErrInvalidTimeLimit         = errors.New("invalid time limit")
	ErrGameNotWaitingForPlayers = errors.New("game is not waiting for players")
	ErrCannotPlayAgainstSelf    = errors.New("cannot play against yourself")
	ErrInvalidPhaseForDeposit   = errors.New("invalid phase for deposit")
	ErrUnauthorizedParticipant  = errors.New("unauthorized participant")
	ErrAlreadyDeposited         = errors.New("participant has already deposited")
	ErrGameNotActive            = errors.New("game is not active")
	ErrMoveLabelTooLong         = errors.New("move label too long (max 10 bytes)")
	ErrNotYourTurn              = errors.New("not your turn")
	ErrMoveTimeExceeded         = errors.New("move time exceeded")
	ErrInvalidOutcome           = errors.New("invalid outcome declaration")
	ErrInvalidDrawDeclaration   = errors.New("invalid draw declaration")
	ErrCannotCancelStartedGame  = errors.New("cannot cancel a started game")
	ErrTimeNotExceeded          = errors.New("time limit not exceeded")
)

// ErrorCode maps a core error to its stable wire code. Unknown errors map
// to INTERNAL.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomIDTooLong):
		return "ROOM_ID_TOO_LONG"
	case errors.Is(err, ErrInvalidStakeAmount):
		return "INVALID_STAKE_AMOUNT"
	case errors.Is(err, ErrInvalidTimeLimit):
		return "INVALID_TIME_LIMIT"
	case errors.Is(err, ErrGameNotWaitingForPlayers):
		return "GAME_NOT_WAITING_FOR_PLAYERS"
	case errors.Is(err, ErrCannotPlayAgainstSelf):
		return "CANNOT_PLAY_AGAINST_SELF"
	case errors.Is(err, ErrInvalidPhaseForDeposit):
		return "INVALID_PHASE_FOR_DEPOSIT"
	case errors.Is(err, ErrUnauthorizedParticipant):
		return "UNAUTHORIZED_PARTICIPANT"
	case errors.Is(err, ErrAlreadyDeposited):
		return "ALREADY_DEPOSITED"
	case errors.Is(err, ErrGameNotActive):
		return "GAME_NOT_ACTIVE"
	case errors.Is(err, ErrMoveLabelTooLong):
		return "MOVE_LABEL_TOO_LONG"
	case errors.Is(err, ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, ErrMoveTimeExceeded):
		return "MOVE_TIME_EXCEEDED"
	case errors.Is(err, ErrInvalidOutcome):
		return "INVALID_OUTCOME"
	case errors.Is(err, ErrInvalidDrawDeclaration):
		return "INVALID_DRAW_DECLARATION"
	case errors.Is(err, ErrCannotCancelStartedGame):
		return "CANNOT_CANCEL_STARTED_GAME"
	case errors.Is(err, ErrTimeNotExceeded):
		return "TIME_NOT_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller may usefully retry the same call
// later without changing it. Only temporal rejections qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeNotExceeded)
}
