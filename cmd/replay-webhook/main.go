// Command replay-webhook signs a stored Stripe event payload with the
// endpoint secret and delivers it to a running API, for local testing of
// subscription reconciliation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/scholarsite/scholarsite/internal/handler"
)

const defaultEndpoint = "http://localhost:8080/api/webhooks/stripe"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read .env:", err)
	}

	var (
		endpoint = flag.String("url", defaultEndpoint, "Webhook endpoint")
		secret   = flag.String("secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "Endpoint signing secret")
		skew     = flag.Duration("skew", 0, "Shift the signature timestamp, e.g. -10m to exercise replay rejection")
		timeout  = flag.Duration("timeout", 10*time.Second, "Request timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] event.json\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "STRIPE_WEBHOOK_SECRET or -secret is required")
		os.Exit(1)
	}

	payload, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read payload:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := buildRequest(ctx, *endpoint, *secret, payload, time.Now().Add(*skew))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "deliver:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Printf("%s\n%s\n", resp.Status, bytes.TrimSpace(body))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

// buildRequest signs payload as Stripe would at ts and wraps it in a POST.
func buildRequest(ctx context.Context, endpoint, secret string, payload []byte, ts time.Time) (*http.Request, error) {
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(signed.Payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SignatureHeader, signed.Header)
	return req, nil
}
