// lyftr CLI - Command line client for the lyftr webhook service
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/amishayyadav/lyftr/clients/go/lyftr"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := lyftr.NewClient(os.Getenv("LYFTR_URL"), os.Getenv("WEBHOOK_SECRET"))
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "ready":
		ok, err := client.Ready()
		exitOnError(err)
		if !ok {
			fmt.Println("not ready")
			os.Exit(1)
		}
		fmt.Println("ready")

	case "send":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: lyftr send <from> <to> <text> [message_id]")
			os.Exit(1)
		}
		text := os.Args[4]
		msg := lyftr.Message{
			MessageID: "m-" + uuid.NewString(),
			From:      os.Args[2],
			To:        os.Args[3],
			TS:        time.Now().UTC().Format(lyftr.TimestampLayout),
			Text:      &text,
		}
		if len(os.Args) > 5 {
			msg.MessageID = os.Args[5]
		}
		exitOnError(client.SendMessage(msg))
		fmt.Printf("Sent: %s\n", msg.MessageID)

	case "list":
		opts := lyftr.ListOptions{Limit: 20}
		if len(os.Args) > 2 {
			opts.From = os.Args[2]
		}
		if len(os.Args) > 3 {
			n, err := strconv.Atoi(os.Args[3])
			exitOnError(err)
			opts.Limit = n
		}
		resp, err := client.ListMessages(opts)
		exitOnError(err)
		for _, m := range resp.Data {
			text := ""
			if m.Text != nil {
				text = *m.Text
			}
			fmt.Printf("[%s] %s -> %s: %s\n", m.TS, m.From, m.To, text)
		}
		fmt.Printf("(%d of %d)\n", len(resp.Data), resp.Total)

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: lyftr search <query>")
			os.Exit(1)
		}
		resp, err := client.ListMessages(lyftr.ListOptions{Limit: 20, Query: os.Args[2]})
		exitOnError(err)
		for _, m := range resp.Data {
			if m.Text != nil {
				fmt.Printf("[%s] %s: %s\n", m.TS, m.From, *m.Text)
			}
		}

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`lyftr CLI - webhook message service client

Usage: lyftr <command> [options]

Commands:
  send <from> <to> <text> [id]   Send a signed webhook message
  list [from] [limit]            List messages
  search <query>                 Search message text
  stats                          Show message stats
  ready                          Check readiness
  health                         Check server health

Environment:
  LYFTR_URL        Server URL (default: http://localhost:8000)
  WEBHOOK_SECRET   Shared secret used to sign webhook bodies`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
