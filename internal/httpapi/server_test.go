package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/valyala/fasthttp"

	"github.com/park285/chess-wager-escrow/internal/escrow"
	"github.com/park285/chess-wager-escrow/internal/wager"
	"github.com/park285/chess-wager-escrow/pkg/escrowdto"
)

const testNow = int64(1_700_000_000)

func newTestServer(t *testing.T) (*Server, *wager.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	mgr, err := wager.NewManager("redis://"+mr.Addr(), escrow.Params{
		FeeBps:       100,
		FeeCollector: "treasury",
		MinStake:     1,
	})
	if err != nil {
		t.Fatalf("wager.NewManager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	mgr.SetNowFunc(func() int64 { return testNow })
	return NewServer(mgr, 300), mgr
}

func doRequest(t *testing.T, s *Server, method, path, caller string, body any) (int, []byte) {
	t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI("http://escrow.local" + path)
	if caller != "" {
		req.Header.Set("X-Player-Id", caller)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req.SetBody(raw)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	s.Handle(ctx)
	out := make([]byte, len(ctx.Response.Body()))
	copy(out, ctx.Response.Body())
	return ctx.Response.StatusCode(), out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}

func errCode(t *testing.T, raw []byte) string {
	t.Helper()
	return decode[escrowdto.ErrorResponse](t, raw).Error.Code
}

func fund(t *testing.T, s *Server, account string, amount int64) {
	t.Helper()
	status, body := doRequest(t, s, fasthttp.MethodPost, "/accounts/"+account+"/credit", account, escrowdto.CreditRequest{Amount: amount})
	if status != fasthttp.StatusOK {
		t.Fatalf("credit %s: status %d body %s", account, status, body)
	}
}

func startMatch(t *testing.T, s *Server, roomID string) {
	t.Helper()
	fund(t, s, "alice", 1000)
	fund(t, s, "bob", 1000)
	if status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: roomID, StakeAmount: 100}); status != fasthttp.StatusCreated {
		t.Fatalf("create: status %d body %s", status, body)
	}
	if status, _ := doRequest(t, s, fasthttp.MethodPost, "/rooms/"+roomID+"/join", "bob", nil); status != fasthttp.StatusOK {
		t.Fatalf("join failed")
	}
	if status, _ := doRequest(t, s, fasthttp.MethodPost, "/rooms/"+roomID+"/deposit", "alice", nil); status != fasthttp.StatusOK {
		t.Fatalf("deposit a failed")
	}
	if status, _ := doRequest(t, s, fasthttp.MethodPost, "/rooms/"+roomID+"/deposit", "bob", nil); status != fasthttp.StatusOK {
		t.Fatalf("deposit b failed")
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms", "", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 100})
	if status != fasthttp.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	if errCode(t, body) != "MISSING_PLAYER_ID" {
		t.Fatalf("code = %s", body)
	}
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 100})
	if status != fasthttp.StatusCreated {
		t.Fatalf("create status = %d body %s", status, body)
	}
	view := decode[escrowdto.RoomView](t, body)
	if view.Phase != "AWAITING_OPPONENT" || view.PlayerA != "alice" || view.TimeLimitSec != 300 {
		t.Fatalf("view = %+v", view)
	}

	status, body = doRequest(t, s, fasthttp.MethodGet, "/rooms/r1", "", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	view = decode[escrowdto.RoomView](t, body)
	if view.RoomID != "r1" || view.VaultBalance != 0 {
		t.Fatalf("get view = %+v", view)
	}

	// Duplicate room id.
	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms", "carol", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 50})
	if status != fasthttp.StatusConflict || errCode(t, body) != "ROOM_EXISTS" {
		t.Fatalf("duplicate create: status %d body %s", status, body)
	}
}

func TestGetUnknownRoom(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := doRequest(t, s, fasthttp.MethodGet, "/rooms/nope", "", nil)
	if status != fasthttp.StatusNotFound || errCode(t, body) != "ROOM_NOT_FOUND" {
		t.Fatalf("status %d body %s", status, body)
	}
}

func TestValidationErrors(t *testing.T) {
	s, _ := newTestServer(t)

	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 0})
	if status != fasthttp.StatusBadRequest || errCode(t, body) != "INVALID_STAKE_AMOUNT" {
		t.Fatalf("zero stake: status %d body %s", status, body)
	}

	longID := "this-room-id-is-way-longer-than-32-bytes"
	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: longID, StakeAmount: 100})
	if status != fasthttp.StatusBadRequest || errCode(t, body) != "ROOM_ID_TOO_LONG" {
		t.Fatalf("long id: status %d body %s", status, body)
	}
}

func TestBadJSONBody(t *testing.T) {
	s, _ := newTestServer(t)
	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("http://escrow.local/rooms")
	req.Header.Set("X-Player-Id", "alice")
	req.SetBodyString("{not json")
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	s.Handle(ctx)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
}

func TestDepositWithoutFunds(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 100})
	doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/join", "bob", nil)

	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/deposit", "alice", nil)
	if status != fasthttp.StatusPaymentRequired || errCode(t, body) != "INSUFFICIENT_FUNDS" {
		t.Fatalf("status %d body %s", status, body)
	}
}

func TestMatchLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	startMatch(t, s, "r1")

	status, body := doRequest(t, s, fasthttp.MethodGet, "/rooms/r1", "", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("get: %d", status)
	}
	view := decode[escrowdto.RoomView](t, body)
	if view.Phase != "ACTIVE" || view.VaultBalance != 200 || view.ExpectedMover != "alice" {
		t.Fatalf("active view = %+v", view)
	}

	// Bob may not move first.
	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/moves", "bob", escrowdto.MoveRequest{Label: "e5"})
	if status != fasthttp.StatusForbidden || errCode(t, body) != "NOT_YOUR_TURN" {
		t.Fatalf("out of turn: status %d body %s", status, body)
	}

	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/moves", "alice", escrowdto.MoveRequest{Label: "e4", Fingerprint: "abc"})
	if status != fasthttp.StatusOK {
		t.Fatalf("move: status %d body %s", status, body)
	}
	receipt := decode[escrowdto.MoveReceiptView](t, body)
	if receipt.MoveCount != 1 || receipt.Mover != "alice" || receipt.Label != "e4" {
		t.Fatalf("receipt = %+v", receipt)
	}

	// Bob resigns: alice wins.
	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/result", "bob", escrowdto.DeclareRequest{Outcome: "winner_a", Reason: "resignation"})
	if status != fasthttp.StatusOK {
		t.Fatalf("result: status %d body %s", status, body)
	}
	resp := decode[escrowdto.SettleResponse](t, body)
	if resp.Room.Phase != "SETTLED" || resp.Room.Outcome != "WINNER_A" {
		t.Fatalf("settled room = %+v", resp.Room)
	}
	if resp.Settlement == nil || resp.Settlement.Fee != 2 {
		t.Fatalf("settlement = %+v", resp.Settlement)
	}

	// Winner balance: 1000 - 100 stake + 198 payout.
	status, body = doRequest(t, s, fasthttp.MethodGet, "/accounts/alice", "", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("account: %d", status)
	}
	acct := decode[escrowdto.AccountView](t, body)
	if acct.Balance != 1098 {
		t.Fatalf("alice balance = %d", acct.Balance)
	}
	if len(acct.Rooms) != 1 || acct.Rooms[0] != "r1" {
		t.Fatalf("alice rooms = %v", acct.Rooms)
	}
}

func TestTimeoutTooEarlyIsRetryable(t *testing.T) {
	s, _ := newTestServer(t)
	startMatch(t, s, "r1")

	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/timeout", "", nil)
	if status != http.StatusTooEarly {
		t.Fatalf("status = %d body %s", status, body)
	}
	resp := decode[escrowdto.ErrorResponse](t, body)
	if resp.Error.Code != "TIME_NOT_EXCEEDED" || !resp.Error.Retryable {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestTimeoutAfterDeadline(t *testing.T) {
	s, mgr := newTestServer(t)
	startMatch(t, s, "r1")

	mgr.SetNowFunc(func() int64 { return testNow + 301 })
	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/timeout", "", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("status = %d body %s", status, body)
	}
	resp := decode[escrowdto.SettleResponse](t, body)
	// Zero moves: it was alice's turn, so bob wins.
	if resp.Room.Outcome != "WINNER_B" || resp.Settlement.Reason != "TIMEOUT" {
		t.Fatalf("timeout result = %+v / %+v", resp.Room, resp.Settlement)
	}
}

func TestCancelPreActive(t *testing.T) {
	s, _ := newTestServer(t)
	fund(t, s, "alice", 500)
	doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: "r1", StakeAmount: 100})
	doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/join", "bob", nil)
	doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/deposit", "alice", nil)

	// Outsider cannot cancel.
	status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/cancel", "mallory", nil)
	if status != fasthttp.StatusForbidden {
		t.Fatalf("outsider cancel: status %d body %s", status, body)
	}

	status, body = doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/cancel", "bob", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("cancel: status %d body %s", status, body)
	}
	resp := decode[escrowdto.SettleResponse](t, body)
	if resp.Room.Phase != "CANCELLED" {
		t.Fatalf("phase = %s", resp.Room.Phase)
	}
	if len(resp.Settlement.Payouts) != 1 || resp.Settlement.Payouts[0].Account != "alice" || resp.Settlement.Payouts[0].Amount != 100 {
		t.Fatalf("refunds = %+v", resp.Settlement.Payouts)
	}

	// Alice is made whole.
	_, body = doRequest(t, s, fasthttp.MethodGet, "/accounts/alice", "", nil)
	if acct := decode[escrowdto.AccountView](t, body); acct.Balance != 500 {
		t.Fatalf("alice balance = %d", acct.Balance)
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{fasthttp.MethodGet, "/nope"},
		{fasthttp.MethodDelete, "/rooms/r1"},
		{fasthttp.MethodPost, "/rooms/r1/unknown"},
	} {
		status, _ := doRequest(t, s, tc.method, tc.path, "alice", nil)
		if status != fasthttp.StatusNotFound {
			t.Fatalf("%s %s: status = %d", tc.method, tc.path, status)
		}
	}
}

func TestCreditValidation(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := doRequest(t, s, fasthttp.MethodPost, "/accounts/alice/credit", "alice", escrowdto.CreditRequest{Amount: -5})
	if status != fasthttp.StatusBadRequest {
		t.Fatalf("status = %d body %s", status, body)
	}
	if errCode(t, body) != "BAD_REQUEST" {
		t.Fatalf("code = %s", body)
	}
}

func TestConcurrentRoomsStayIndependent(t *testing.T) {
	s, _ := newTestServer(t)
	startMatch(t, s, "r1")

	// Second pair of rooms sharing the same players.
	for i := 2; i <= 3; i++ {
		room := fmt.Sprintf("r%d", i)
		if status, body := doRequest(t, s, fasthttp.MethodPost, "/rooms", "alice", escrowdto.CreateRoomRequest{RoomID: room, StakeAmount: 50}); status != fasthttp.StatusCreated {
			t.Fatalf("create %s: %d %s", room, status, body)
		}
	}

	// Settling r1 must not touch r2/r3.
	doRequest(t, s, fasthttp.MethodPost, "/rooms/r1/result", "alice", escrowdto.DeclareRequest{Outcome: "WINNER_B", Reason: "RESIGNATION"})
	for i := 2; i <= 3; i++ {
		status, body := doRequest(t, s, fasthttp.MethodGet, fmt.Sprintf("/rooms/r%d", i), "", nil)
		if status != fasthttp.StatusOK {
			t.Fatalf("get r%d: %d", i, status)
		}
		if view := decode[escrowdto.RoomView](t, body); view.Phase != "AWAITING_OPPONENT" {
			t.Fatalf("r%d phase = %s", i, view.Phase)
		}
	}
}
