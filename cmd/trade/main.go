// 命令行下单工具：向结算服务提交一笔交易并打印终态结果。
// 联调与演示用，不依赖浏览器端。
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func main() {
	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		baseURL = flag.String("server", getenv("SETTLE_API_URL", "http://127.0.0.1:8080"), "settlement API base URL")
		userID  = flag.String("user", "", "user ID (required)")
		assetID = flag.String("asset", "", "asset ID (required)")
		side    = flag.String("side", "buy", "buy or sell")
		qty     = flag.String("qty", "", "quantity (required)")
		price   = flag.String("price", "", "unit price (required)")
		payment = flag.String("payment", "wallet", "payment method (wallet or card)")
		tradeID = flag.String("trade-id", "", "trade ID (optional, server generates one if empty)")
	)
	flag.Parse()

	if *userID == "" || *assetID == "" || *qty == "" || *price == "" {
		flag.Usage()
		os.Exit(2)
	}

	body := map[string]string{
		"user_id":        *userID,
		"asset_id":       *assetID,
		"side":           *side,
		"quantity":       *qty,
		"unit_price":     *price,
		"payment_method": *payment,
	}
	if *tradeID != "" {
		body["trade_id"] = *tradeID
	}

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(30 * time.Second)

	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/trades")
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit trade: %v\n", err)
		os.Exit(1)
	}

	var pretty json.RawMessage = resp.Body()
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		// 响应不是 JSON（不应发生），原样输出
		fmt.Println(string(resp.Body()))
	} else {
		fmt.Println(string(out))
	}

	if resp.StatusCode() != 200 {
		fmt.Fprintf(os.Stderr, "trade not settled (HTTP %d)\n", resp.StatusCode())
		os.Exit(1)
	}
}
