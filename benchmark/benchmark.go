// Command benchmark drives the storefront order workflow against a running server
// and writes per-step latencies to a CSV file. The contention phase completes many
// orders at once to exercise stock reconciliation under concurrency.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ribon-matchalatte/backend/benchmark/client"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type RequestResult struct {
	Name        string
	Method      string
	Endpoint    string
	StatusCode  int
	Latency     time.Duration
	BlockHeight int64
}

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:5000", "Server base URL")
	iterations := flag.Int("n", 1, "Number of workflow iterations to run")
	concurrency := flag.Int("c", 8, "Orders completed at once in the contention phase")
	productID := flag.String("product", "PRD-MATCHA-LATTE", "Product ordered by the benchmark")
	flag.Parse()

	filename := fmt.Sprintf("benchmark_n_%d_c_%d.csv", *iterations, *concurrency)
	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("Error creating CSV file: %v\n", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Iteration", "Step", "Method", "Endpoint", "StatusCode", "Latency_ms", "BlockHeight"}
	if err := writer.Write(header); err != nil {
		fmt.Printf("Error writing CSV header: %v\n", err)
		return
	}

	b := &bench{
		client:    client.NewHTTPClient(*baseURL),
		productID: *productID,
	}
	ctx := context.Background()

	for i := 0; i < *iterations; i++ {
		fmt.Printf("\n[Iteration %d/%d]\n", i+1, *iterations)
		results := b.runWorkflow(ctx)
		results = append(results, b.runContention(ctx, *concurrency)...)

		for _, result := range results {
			record := []string{
				strconv.Itoa(i + 1),
				result.Name,
				result.Method,
				result.Endpoint,
				strconv.Itoa(result.StatusCode),
				strconv.FormatInt(result.Latency.Milliseconds(), 10),
				strconv.FormatInt(result.BlockHeight, 10),
			}
			if err := writer.Write(record); err != nil {
				fmt.Printf("Error writing record to CSV: %v\n", err)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("\nBenchmark complete. Results saved to %s\n", filename)
}

type bench struct {
	client    *client.HTTPClient
	productID string
}

// step issues one request and records its latency
func (b *bench) step(ctx context.Context, name, method, endpoint, pattern string, body interface{}) (*client.Response, RequestResult, error) {
	start := time.Now()
	resp, err := b.client.Call(ctx, method, endpoint, body, nil)
	result := RequestResult{Name: name, Method: method, Endpoint: pattern, Latency: time.Since(start)}
	if err != nil {
		return nil, result, err
	}
	result.StatusCode = resp.StatusCode
	result.BlockHeight = gjson.GetBytes(resp.Body, "meta.block_height").Int()
	return resp, result, nil
}

func (b *bench) checkout(ctx context.Context) (string, RequestResult, error) {
	resp, result, err := b.step(ctx, "Checkout", http.MethodPost, "/api/orders", "/api/orders", map[string]interface{}{
		"items":          []map[string]interface{}{{"product_id": b.productID, "quantity": 1}},
		"address":        "12 Nguyen Hue, District 1",
		"phone":          "0912345678",
		"payment_method": "Cash",
	})
	if err != nil {
		return "", result, err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", result, fmt.Errorf("checkout returned %d: %s", resp.StatusCode, resp.Body)
	}
	env, err := client.Decode[order](resp)
	if err != nil {
		return "", result, err
	}
	return env.Body.ID, result, nil
}

func (b *bench) setStatus(ctx context.Context, name, orderID, status string) (RequestResult, error) {
	_, result, err := b.step(ctx, name, http.MethodPut,
		fmt.Sprintf("/api/admin/orders/%s/status", orderID), "/api/admin/orders/:id/status",
		map[string]string{"status": status})
	return result, err
}

// runWorkflow walks one order from the catalog to completion
func (b *bench) runWorkflow(ctx context.Context) []RequestResult {
	var results []RequestResult
	totalStart := time.Now()

	_, result, err := b.step(ctx, "List Products", http.MethodGet, "/api/products", "/api/products", nil)
	results = append(results, result)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("Catalog listed [Delay: %v]\n", result.Latency)

	orderID, result, err := b.checkout(ctx)
	results = append(results, result)
	if err != nil {
		fmt.Println(err)
		return results
	}
	fmt.Printf("OrderID : %s [Delay: %v]\n", orderID, result.Latency)

	for _, status := range []string{"Preparing", "Shipping", "Delivered", "Completed"} {
		result, err := b.setStatus(ctx, "Set "+status, orderID, status)
		results = append(results, result)
		if err != nil {
			fmt.Println(err)
			return results
		}
		fmt.Printf("Order %s -> %s, HTTP %d, block height %d [Delay: %v]\n",
			orderID, status, result.StatusCode, result.BlockHeight, result.Latency)
	}

	_, result, err = b.step(ctx, "Ledger Trail", http.MethodGet, "/ledger/"+orderID, "/ledger/:orderID", nil)
	results = append(results, result)
	if err != nil {
		fmt.Println(err)
	}

	totalElapsed := time.Since(totalStart)
	fmt.Printf("\nTotal workflow execution time: %v\n", totalElapsed)
	return append(results, RequestResult{
		Name:     "Complete Workflow",
		Method:   "WORKFLOW",
		Endpoint: "complete-workflow",
		Latency:  totalElapsed,
	})
}

// runContention places n orders and completes them all at once
func (b *bench) runContention(ctx context.Context, n int) []RequestResult {
	orderIDs := make([]string, 0, n)
	for range n {
		orderID, _, err := b.checkout(ctx)
		if err != nil {
			fmt.Println(err)
			break
		}
		orderIDs = append(orderIDs, orderID)
	}

	var (
		mu       sync.Mutex
		results  []RequestResult
		outcomes = map[int]int{}
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, orderID := range orderIDs {
		g.Go(func() error {
			result, err := b.setStatus(gctx, "Concurrent Complete", orderID, "Completed")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
			outcomes[result.StatusCode]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Println(err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Completed %d orders concurrently in %v: %d ok, %d insufficient stock, %d not reconciled\n",
		len(orderIDs), elapsed, outcomes[http.StatusOK], outcomes[http.StatusConflict], outcomes[http.StatusServiceUnavailable])
	return append(results, RequestResult{
		Name:     "Contention Phase",
		Method:   "WORKFLOW",
		Endpoint: "concurrent-completion",
		Latency:  elapsed,
	})
}
