package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"github.com/park285/chess-wager-escrow/internal/apiclient"
	"github.com/park285/chess-wager-escrow/internal/rules"
	"github.com/park285/chess-wager-escrow/internal/wager"
	"github.com/park285/chess-wager-escrow/pkg/escrowdto"
)

func main() {
	server := flag.String("server", envDefault("ESCROW_SERVER", "http://localhost:8080"), "escrow API base URL")
	events := flag.String("events", envDefault("ESCROW_EVENTS", "ws://localhost:8081"), "event stream base URL")
	player := flag.String("player", envDefault("ESCROW_PLAYER", ""), "player identity")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	client := apiclient.NewClient(*server, apiclient.WithPlayer(*player))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, *events, *player, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *apiclient.Client, eventsURL, player string, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		if len(rest) < 2 {
			return fmt.Errorf("usage: create <room> <stake> [timeLimitSec]")
		}
		stake, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad stake: %w", err)
		}
		req := escrowdto.CreateRoomRequest{RoomID: rest[0], StakeAmount: stake}
		if len(rest) >= 3 {
			if req.TimeLimitSec, err = strconv.ParseInt(rest[2], 10, 64); err != nil {
				return fmt.Errorf("bad time limit: %w", err)
			}
		}
		view, err := client.CreateRoom(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(view)

	case "join":
		return roomAction(ctx, rest, client.Join)

	case "deposit":
		return roomAction(ctx, rest, client.Deposit)

	case "move":
		if len(rest) < 2 {
			return fmt.Errorf("usage: move <room> <label> [fingerprint]")
		}
		req := escrowdto.MoveRequest{Label: rest[1]}
		if len(rest) >= 3 {
			req.Fingerprint = rest[2]
		}
		receipt, err := client.Move(ctx, rest[0], req)
		if err != nil {
			return err
		}
		return printJSON(receipt)

	case "resign":
		if len(rest) < 1 {
			return fmt.Errorf("usage: resign <room>")
		}
		return resign(ctx, client, rest[0], player)

	case "draw":
		if len(rest) < 1 {
			return fmt.Errorf("usage: draw <room>")
		}
		resp, err := client.DeclareResult(ctx, rest[0], escrowdto.DeclareRequest{Outcome: "DRAW", Reason: "AGREEMENT"})
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "result":
		if len(rest) < 3 {
			return fmt.Errorf("usage: result <room> <outcome> <reason>")
		}
		resp, err := client.DeclareResult(ctx, rest[0], escrowdto.DeclareRequest{Outcome: rest[1], Reason: rest[2]})
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "timeout":
		if len(rest) < 1 {
			return fmt.Errorf("usage: timeout <room>")
		}
		resp, err := client.ForceTimeout(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "cancel":
		if len(rest) < 1 {
			return fmt.Errorf("usage: cancel <room>")
		}
		resp, err := client.Cancel(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(resp)

	case "show":
		if len(rest) < 1 {
			return fmt.Errorf("usage: show <room>")
		}
		view, err := client.GetRoom(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(view)

	case "account":
		if len(rest) < 1 {
			return fmt.Errorf("usage: account <id>")
		}
		acct, err := client.Account(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(acct)

	case "credit":
		if len(rest) < 2 {
			return fmt.Errorf("usage: credit <id> <amount>")
		}
		amount, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad amount: %w", err)
		}
		acct, err := client.Credit(ctx, rest[0], amount)
		if err != nil {
			return err
		}
		return printJSON(acct)

	case "watch":
		room := ""
		if len(rest) >= 1 {
			room = rest[0]
		}
		return watch(ctx, eventsURL, room)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func roomAction(ctx context.Context, rest []string, fn func(context.Context, string) (*escrowdto.RoomView, error)) error {
	if len(rest) < 1 {
		return fmt.Errorf("room id required")
	}
	view, err := fn(ctx, rest[0])
	if err != nil {
		return err
	}
	return printJSON(view)
}

// resign declares the opponent as winner. The server enforces that only the
// losing side may declare a resignation.
func resign(ctx context.Context, client *apiclient.Client, roomID, player string) error {
	view, err := client.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	outcome := "WINNER_B"
	if player != "" && player == view.PlayerB {
		outcome = "WINNER_A"
	}
	resp, err := client.DeclareResult(ctx, roomID, escrowdto.DeclareRequest{Outcome: outcome, Reason: "RESIGNATION"})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// watch tails the audit stream and replays move labels through a local rules
// tracker so the console shows legality, SAN and the live position.
func watch(ctx context.Context, eventsURL, room string) error {
	target := strings.TrimRight(eventsURL, "/") + "/events"
	if room != "" {
		target += "?room=" + room
	}

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dctx, target, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	fmt.Println("watching", target)
	trackers := map[string]*rules.Tracker{}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var ev wager.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			fmt.Println("bad event:", err)
			continue
		}
		fmt.Printf("[%s] %s room=%s %v\n", time.Unix(ev.At, 0).Format(time.TimeOnly), ev.Type, ev.Room, ev.Attrs)

		if ev.Type != wager.EventTypeMoveRecorded {
			continue
		}
		tr, ok := trackers[ev.Room]
		if !ok {
			tr = rules.NewTracker()
			trackers[ev.Room] = tr
		}
		mv, err := tr.Apply(ev.Attrs["label"])
		if err != nil {
			fmt.Printf("  move %q did not replay locally: %v\n", ev.Attrs["label"], err)
			delete(trackers, ev.Room)
			continue
		}
		fmt.Printf("  %s  fen=%s\n", mv.SAN, tr.FEN())
		if fp := ev.Attrs["fingerprint"]; fp != "" && fp != tr.Fingerprint() {
			fmt.Println("  fingerprint mismatch with local replay")
		}
		switch mv.Verdict {
		case rules.VerdictCheckmate:
			fmt.Println("  checkmate on the board; loser should declare the result")
		case rules.VerdictStalemate:
			fmt.Println("  stalemate on the board; either side may declare a draw")
		}
	}
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.Join([]string{
		"usage: escrow-cli [-server URL] [-events URL] [-player ID] <command> [args]",
		"",
		"  create <room> <stake> [timeLimitSec]",
		"  join <room>",
		"  deposit <room>",
		"  move <room> <label> [fingerprint]",
		"  resign <room>",
		"  draw <room>",
		"  result <room> <outcome> <reason>",
		"  timeout <room>",
		"  cancel <room>",
		"  show <room>",
		"  account <id>",
		"  credit <id> <amount>",
		"  watch [room]",
	}, "\n"))
}
