package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/amishayyadav/lyftr/internal/crypto"
	"github.com/amishayyadav/lyftr/internal/models"
)

type payload struct {
	MessageID string  `json:"message_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	TS        string  `json:"ts"`
	Text      *string `json:"text,omitempty"`
}

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// run writes the exact signed body to stdout and the signature header to
// stderr, so stdout can be piped straight into an HTTP client.
func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", os.Getenv("WEBHOOK_SECRET"), "Webhook secret (defaults to $WEBHOOK_SECRET)")
	bodyFile := fs.String("body", "", "File containing the exact request body to sign")
	from := fs.String("from", "+919876543210", "Sender for a generated payload")
	to := fs.String("to", "+14155550100", "Recipient for a generated payload")
	text := fs.String("text", "Hello", "Text for a generated payload")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *secret == "" {
		fmt.Fprintln(stderr, "Usage: sign -secret <secret> [-body <file> | -from A -to B -text T]")
		fmt.Fprintln(stderr, "  Generates a payload with a fresh message_id when -body is not given")
		return errUsage
	}

	var body []byte
	var err error
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
	} else {
		p := payload{
			MessageID: "m-" + uuid.NewString(),
			From:      *from,
			To:        *to,
			TS:        time.Now().UTC().Format(models.TimestampLayout),
		}
		if *text != "" {
			p.Text = text
		}
		body, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
	}

	if _, err := stdout.Write(body); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stderr, "%s: %s\n", crypto.SignatureHeader, crypto.Sign([]byte(*secret), body))
	return err
}
