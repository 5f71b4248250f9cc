// client is a minimal HTTP CLI against cmd/gateway, replacing the
// teacher's original binary-TCP-protocol client now that the wire
// protocol is JSON-over-Redis fronted by an HTTP gateway. The flag set
// is kept compatible with the original: -server, -owner, -action,
// -ticker, -side, -type, -price, -qty, -uuid.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "Address of the gateway")
	owner := flag.String("owner", "", "Owner user id (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'open', 'depth']")

	ticker := flag.String("ticker", "BTC_USDT", "Market ticker, e.g. BTC_USDT")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: only 'limit' is accepted")
	price := flag.String("price", "100.0", "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity")

	uuid := flag.String("uuid", "", "Order id to cancel")

	flag.Parse()

	if *owner == "" && *action != "depth" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	side := "BUY"
	if strings.ToLower(*sideStr) == "sell" {
		side = "SELL"
	}
	if strings.ToLower(*typeStr) != "limit" {
		log.Fatal("only limit orders are supported")
	}

	switch strings.ToLower(*action) {
	case "place":
		if _, err := strconv.ParseFloat(*qtyStr, 64); err != nil {
			log.Fatalf("invalid quantity %q: %v", *qtyStr, err)
		}
		body := map[string]string{
			"market": *ticker, "price": *price, "quantity": *qtyStr, "side": side, "user_id": *owner,
		}
		post(*server+"/orders", body)

	case "cancel":
		if *uuid == "" {
			log.Fatal("Error: -uuid is required for cancellation")
		}
		body := map[string]string{"market": *ticker, "price": *price, "side": side, "user_id": *owner}
		deleteRequest(fmt.Sprintf("%s/orders/%s", *server, *uuid), body)

	case "open":
		get(fmt.Sprintf("%s/orders?user_id=%s&market=%s", *server, *owner, *ticker))

	case "depth":
		get(fmt.Sprintf("%s/depth/%s", *server, *ticker))

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

func post(url string, body map[string]string) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("failed to encode request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func deleteRequest(url string, body map[string]string) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("failed to encode request: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, url, bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func get(url string) {
	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	fmt.Println(string(out))
}
