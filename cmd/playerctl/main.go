// Package main provides the player control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/tapedeck/internal/api/connect"
)

var (
	app     = kingpin.New("tapedeck-playerctl", "tapedeck player control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	statusCmd = app.Command("status", "Show player status").Default()
	queueCmd  = app.Command("queue", "Show the queue")
	watchCmd  = app.Command("watch", "Stream status changes until interrupted")

	playCmd   = app.Command("play", "Start or resume playback")
	pauseCmd  = app.Command("pause", "Pause playback")
	toggleCmd = app.Command("toggle", "Toggle play/pause")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Restart or go to the previous track").Alias("previous")

	seekCmd = app.Command("seek", "Seek within the current track")
	seekPos = seekCmd.Arg("position", "Position (e.g. 1m30s, 90s)").Required().Duration()

	jumpCmd   = app.Command("jump", "Play the queue entry at index")
	jumpIndex = jumpCmd.Arg("index", "Queue index (0-based)").Required().Int()

	removeCmd   = app.Command("remove", "Remove the queue entry at index")
	removeIndex = removeCmd.Arg("index", "Queue index (0-based)").Required().Int()

	moveCmd  = app.Command("move", "Move a queue entry")
	moveFrom = moveCmd.Arg("from", "Source index").Required().Int()
	moveTo   = moveCmd.Arg("to", "Destination index").Required().Int()

	clearCmd = app.Command("clear", "Empty the queue")

	repeatCmd  = app.Command("repeat", "Set repeat mode, or cycle it when no mode is given")
	repeatMode = repeatCmd.Arg("mode", "off, all or one").Enum("off", "all", "one")

	shuffleCmd   = app.Command("shuffle", "Set shuffle, or toggle it when no value is given")
	shuffleValue = shuffleCmd.Arg("value", "on or off").Enum("on", "off")

	loadCmd    = app.Command("load", "Queue a catalog collection")
	loadRef    = loadCmd.Arg("ref", "Catalog reference (spotify URI/URL or library:<id>)").Required().String()
	loadAppend = loadCmd.Flag("append", "Append instead of replacing the queue").Bool()
	loadStart  = loadCmd.Flag("start", "Index to start playing at").Default("0").Int()

	ackCmd = app.Command("ack", "Acknowledge a stop")

	dismissCmd = app.Command("dismiss", "Dismiss a notice")
	dismissID  = dismissCmd.Arg("notice-id", "Notice ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		watch(client)
		return
	}

	if !readOnly(command) && *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	method, args := request(command)
	res, err := client.Call(ctx, method, args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case queueCmd.FullCommand():
		printQueue(os.Stdout, res.Snapshot)
	case loadCmd.FullCommand():
		fmt.Printf("Loaded %v tracks from %v (%s)\n",
			res.Fields["loaded"], res.Fields["source"], formatMs(toInt64(res.Fields["duration_ms"])))
		printStatus(os.Stdout, res.Snapshot, time.Now())
	case repeatCmd.FullCommand():
		fmt.Printf("Repeat: %s\n", res.Snapshot.Mode.Repeat)
	case shuffleCmd.FullCommand():
		fmt.Printf("Shuffle: %s\n", onOff(res.Snapshot.Mode.Shuffle))
	default:
		printStatus(os.Stdout, res.Snapshot, time.Now())
	}
}

func readOnly(command string) bool {
	return command == statusCmd.FullCommand() || command == queueCmd.FullCommand()
}

// request maps a command to its procedure and arguments.
func request(command string) (string, map[string]any) {
	switch command {
	case playCmd.FullCommand():
		return apiconnect.MethodPlay, nil
	case pauseCmd.FullCommand():
		return apiconnect.MethodPause, nil
	case toggleCmd.FullCommand():
		return apiconnect.MethodToggle, nil
	case nextCmd.FullCommand():
		return apiconnect.MethodNext, nil
	case prevCmd.FullCommand():
		return apiconnect.MethodPrevious, nil
	case seekCmd.FullCommand():
		return apiconnect.MethodSeek, map[string]any{"position_ms": seekPos.Milliseconds()}
	case jumpCmd.FullCommand():
		return apiconnect.MethodJumpTo, map[string]any{"index": *jumpIndex}
	case removeCmd.FullCommand():
		return apiconnect.MethodRemove, map[string]any{"index": *removeIndex}
	case moveCmd.FullCommand():
		return apiconnect.MethodReorder, map[string]any{"from": *moveFrom, "to": *moveTo}
	case clearCmd.FullCommand():
		return apiconnect.MethodClear, nil
	case repeatCmd.FullCommand():
		if *repeatMode == "" {
			return apiconnect.MethodCycleRepeat, nil
		}
		return apiconnect.MethodSetRepeat, map[string]any{"mode": *repeatMode}
	case shuffleCmd.FullCommand():
		if *shuffleValue == "" {
			return apiconnect.MethodToggleShuffle, nil
		}
		return apiconnect.MethodSetShuffle, map[string]any{"enabled": *shuffleValue == "on"}
	case loadCmd.FullCommand():
		return apiconnect.MethodLoadSource, map[string]any{
			"ref":         *loadRef,
			"append":      *loadAppend,
			"start_index": *loadStart,
		}
	case ackCmd.FullCommand():
		return apiconnect.MethodAcknowledge, nil
	case dismissCmd.FullCommand():
		return apiconnect.MethodDismissNotice, map[string]any{"id": *dismissID}
	default:
		return apiconnect.MethodSnapshot, nil
	}
}

func watch(client *apiconnect.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var last string
	err := client.Watch(ctx, func(s apiconnect.SnapshotView) error {
		line := statusLine(s)
		if line != last {
			fmt.Println(line)
			last = line
		}
		return nil
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	default:
		return 0
	}
}

// pad truncates or pads s to n runes.
func pad(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s + strings.Repeat(" ", n-len(r))
}
