// Package httpapi exposes the escrow operations over HTTP. Routing is a
// hand-rolled path switch on fasthttp; callers identify themselves with the
// X-Player-Id header.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-wager-escrow/internal/escrow"
	"github.com/park285/chess-wager-escrow/internal/obslog"
	"github.com/park285/chess-wager-escrow/internal/wager"
	"github.com/park285/chess-wager-escrow/pkg/escrowdto"
)

const playerHeader = "X-Player-Id"

type Server struct {
	mgr              *wager.Manager
	defaultTimeLimit int64
}

func NewServer(mgr *wager.Manager, defaultTimeLimitSec int64) *Server {
	if defaultTimeLimitSec <= 0 {
		defaultTimeLimitSec = 300
	}
	return &Server{mgr: mgr, defaultTimeLimit: defaultTimeLimitSec}
}

// Listen blocks serving the API on addr.
func (s *Server) Listen(addr string) error {
	srv := &fasthttp.Server{
		Handler:            s.Handle,
		Name:               "escrowd",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 << 16,
	}
	return srv.ListenAndServe(addr)
}

// Handle routes one request. Paths:
//
//	POST /rooms                      create (caller becomes player A)
//	GET  /rooms/{id}                 fetch record + vault balance
//	POST /rooms/{id}/join            second player joins
//	POST /rooms/{id}/deposit         caller deposits their stake
//	POST /rooms/{id}/moves           caller records a move
//	POST /rooms/{id}/result          caller declares the outcome
//	POST /rooms/{id}/timeout         anyone forces an inactivity timeout
//	POST /rooms/{id}/cancel          participant cancels a pre-active room
//	GET  /accounts/{id}              balance + room index
//	POST /accounts/{id}/credit       top up an account
//	GET  /healthz
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		return
	case path == "/rooms" && method == fasthttp.MethodPost:
		s.handleCreate(ctx)
		return
	}

	if rest, ok := strings.CutPrefix(path, "/rooms/"); ok {
		roomID, action, _ := strings.Cut(rest, "/")
		if roomID == "" {
			writeErrorCode(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "unknown route")
			return
		}
		s.handleRoom(ctx, method, roomID, action)
		return
	}

	if rest, ok := strings.CutPrefix(path, "/accounts/"); ok {
		acctID, action, _ := strings.Cut(rest, "/")
		if acctID == "" {
			writeErrorCode(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "unknown route")
			return
		}
		s.handleAccount(ctx, method, acctID, action)
		return
	}

	writeErrorCode(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "unknown route")
}

func (s *Server) handleRoom(ctx *fasthttp.RequestCtx, method, roomID, action string) {
	switch {
	case action == "" && method == fasthttp.MethodGet:
		s.handleGet(ctx, roomID)
	case action == "join" && method == fasthttp.MethodPost:
		s.handleJoin(ctx, roomID)
	case action == "deposit" && method == fasthttp.MethodPost:
		s.handleDeposit(ctx, roomID)
	case action == "moves" && method == fasthttp.MethodPost:
		s.handleMove(ctx, roomID)
	case action == "result" && method == fasthttp.MethodPost:
		s.handleResult(ctx, roomID)
	case action == "timeout" && method == fasthttp.MethodPost:
		s.handleTimeout(ctx, roomID)
	case action == "cancel" && method == fasthttp.MethodPost:
		s.handleCancel(ctx, roomID)
	default:
		writeErrorCode(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "unknown route")
	}
}

func (s *Server) handleAccount(ctx *fasthttp.RequestCtx, method, acctID, action string) {
	switch {
	case action == "" && method == fasthttp.MethodGet:
		balance, err := s.mgr.AccountBalance(ctx, acctID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		rooms, err := s.mgr.RoomsByUser(ctx, acctID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, escrowdto.AccountView{Account: acctID, Balance: balance, Rooms: rooms})
	case action == "credit" && method == fasthttp.MethodPost:
		var req escrowdto.CreditRequest
		if !decodeBody(ctx, &req) {
			return
		}
		balance, err := s.mgr.CreditAccount(ctx, acctID, req.Amount)
		if err != nil {
			writeError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, escrowdto.AccountView{Account: acctID, Balance: balance})
	default:
		writeErrorCode(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "unknown route")
	}
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	var req escrowdto.CreateRoomRequest
	if !decodeBody(ctx, &req) {
		return
	}
	timeLimit := req.TimeLimitSec
	if timeLimit == 0 {
		timeLimit = s.defaultTimeLimit
	}
	rec, err := s.mgr.Create(ctx, req.RoomID, caller, req.StakeAmount, timeLimit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, roomView(rec, rec.TotalDeposited))
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx, roomID string) {
	rec, err := s.mgr.Get(ctx, roomID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	vault, err := s.mgr.VaultBalance(ctx, roomID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, roomView(rec, vault))
}

func (s *Server) handleJoin(ctx *fasthttp.RequestCtx, roomID string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	rec, err := s.mgr.Join(ctx, roomID, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, roomView(rec, rec.TotalDeposited))
}

func (s *Server) handleDeposit(ctx *fasthttp.RequestCtx, roomID string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	rec, err := s.mgr.Deposit(ctx, roomID, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, roomView(rec, rec.TotalDeposited))
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx, roomID string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	var req escrowdto.MoveRequest
	if !decodeBody(ctx, &req) {
		return
	}
	_, receipt, err := s.mgr.RecordMove(ctx, roomID, caller, req.Label, req.Fingerprint)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, escrowdto.MoveReceiptView{
		RoomID:      receipt.RoomID,
		Mover:       receipt.Mover,
		Label:       receipt.Label,
		Fingerprint: receipt.Fingerprint,
		MoveCount:   receipt.MoveCount,
		Timestamp:   receipt.Timestamp,
	})
}

func (s *Server) handleResult(ctx *fasthttp.RequestCtx, roomID string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	var req escrowdto.DeclareRequest
	if !decodeBody(ctx, &req) {
		return
	}
	rec, settlement, err := s.mgr.DeclareResult(ctx, roomID, caller,
		escrow.Outcome(strings.ToUpper(strings.TrimSpace(req.Outcome))),
		escrow.EndReason(strings.ToUpper(strings.TrimSpace(req.Reason))))
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, settleResponse(rec, settlement))
}

func (s *Server) handleTimeout(ctx *fasthttp.RequestCtx, roomID string) {
	// Timeout needs no authorization: the winner is derived from the record.
	caller := callerID(ctx)
	rec, settlement, err := s.mgr.ForceTimeout(ctx, roomID, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, settleResponse(rec, settlement))
}

func (s *Server) handleCancel(ctx *fasthttp.RequestCtx, roomID string) {
	caller, ok := requireCaller(ctx)
	if !ok {
		return
	}
	rec, refund, err := s.mgr.Cancel(ctx, roomID, caller)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, settleResponse(rec, refund))
}

func callerID(ctx *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(playerHeader)))
}

func requireCaller(ctx *fasthttp.RequestCtx) (string, bool) {
	caller := callerID(ctx)
	if caller == "" {
		writeErrorCode(ctx, fasthttp.StatusUnauthorized, "MISSING_PLAYER_ID", playerHeader+" header is required")
		return "", false
	}
	return caller, true
}

func decodeBody(ctx *fasthttp.RequestCtx, out any) bool {
	if err := json.Unmarshal(ctx.PostBody(), out); err != nil {
		writeErrorCode(ctx, fasthttp.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return false
	}
	return true
}

func roomView(rec *escrow.Record, vault int64) *escrowdto.RoomView {
	if rec.Phase.Terminal() {
		vault = 0
	}
	view := &escrowdto.RoomView{
		RoomID:         rec.RoomID,
		PlayerA:        rec.PlayerA,
		PlayerB:        rec.PlayerB,
		StakeAmount:    rec.StakeAmount,
		TotalDeposited: rec.TotalDeposited,
		VaultBalance:   vault,
		Phase:          string(rec.Phase),
		Outcome:        string(rec.Outcome),
		DepositedA:     rec.DepositedA,
		DepositedB:     rec.DepositedB,
		MoveCount:      rec.MoveCount,
		TimeLimitSec:   rec.TimeLimit,
		FeeBps:         rec.FeeBps,
		CreatedAt:      rec.CreatedAt,
		StartedAt:      rec.StartedAt,
		SettledAt:      rec.SettledAt,
		LastActivityAt: rec.LastActivityAt,
	}
	if rec.Phase == escrow.PhaseActive {
		view.ExpectedMover = rec.ExpectedMover()
	}
	return view
}

func settleResponse(rec *escrow.Record, s *escrow.Settlement) *escrowdto.SettleResponse {
	resp := &escrowdto.SettleResponse{Room: roomView(rec, 0)}
	if s != nil {
		view := &escrowdto.SettlementView{
			Outcome: string(s.Outcome),
			Reason:  string(s.Reason),
			Fee:     s.Fee,
			Dust:    s.Dust,
		}
		for _, p := range s.Payouts {
			view.Payouts = append(view.Payouts, escrowdto.TransferView{Account: p.Account, Amount: p.Amount})
		}
		resp.Settlement = view
	}
	return resp
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(raw)
}

func writeErrorCode(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, escrowdto.ErrorResponse{Error: escrowdto.DomainError{
		Code:    code,
		Message: message,
	}})
}

// writeError maps domain errors onto statuses and the stable code taxonomy.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusInternalServerError
	code := escrow.ErrorCode(err)
	retryable := escrow.Retryable(err)

	switch {
	case errors.Is(err, wager.ErrInvalidArgument):
		status, code = fasthttp.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, wager.ErrRoomNotFound):
		status, code = fasthttp.StatusNotFound, "ROOM_NOT_FOUND"
	case errors.Is(err, wager.ErrRoomExists):
		status, code = fasthttp.StatusConflict, "ROOM_EXISTS"
	case errors.Is(err, wager.ErrConflict):
		status, code, retryable = fasthttp.StatusConflict, "CONFLICT", true
	case errors.Is(err, wager.ErrInsufficientFunds):
		status, code = fasthttp.StatusPaymentRequired, "INSUFFICIENT_FUNDS"
	case errors.Is(err, escrow.ErrRoomIDTooLong),
		errors.Is(err, escrow.ErrInvalidStakeAmount),
		errors.Is(err, escrow.ErrInvalidTimeLimit),
		errors.Is(err, escrow.ErrMoveLabelTooLong),
		errors.Is(err, escrow.ErrInvalidOutcome),
		errors.Is(err, escrow.ErrInvalidDrawDeclaration):
		status = fasthttp.StatusBadRequest
	case errors.Is(err, escrow.ErrUnauthorizedParticipant),
		errors.Is(err, escrow.ErrNotYourTurn),
		errors.Is(err, escrow.ErrCannotPlayAgainstSelf):
		status = fasthttp.StatusForbidden
	case errors.Is(err, escrow.ErrGameNotWaitingForPlayers),
		errors.Is(err, escrow.ErrInvalidPhaseForDeposit),
		errors.Is(err, escrow.ErrAlreadyDeposited),
		errors.Is(err, escrow.ErrGameNotActive),
		errors.Is(err, escrow.ErrMoveTimeExceeded),
		errors.Is(err, escrow.ErrCannotCancelStartedGame):
		status = fasthttp.StatusConflict
	case errors.Is(err, escrow.ErrTimeNotExceeded):
		status = http.StatusTooEarly
	default:
		obslog.L().Error("api_error", zap.String("path", string(ctx.Path())), zap.Error(err))
	}

	writeJSON(ctx, status, escrowdto.ErrorResponse{Error: escrowdto.DomainError{
		Code:      code,
		Message:   err.Error(),
		Retryable: retryable,
	}})
}
