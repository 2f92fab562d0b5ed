// loadgen drives the pay endpoint with concurrent workers and reports
// per-outcome counts. Useful for checking the service and the mock
// ledger under contention on the single project balance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	user        string
	concurrency int
	duration    time.Duration
)

// Metrics
var (
	totalRequests uint64
	successPaid   uint64
	fail400       uint64 // balance exhausted
	fail403       uint64 // allow-list rejections
	fail409       uint64 // duplicate request ids (should stay 0)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&user, "user", "alice", "identity sent in the X-Forwarded-User header")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
}

func main() {
	flag.Parse()
	log.Printf("Starting loadgen: user=%s | Workers: %d | Duration: %s", user, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		req, _ := http.NewRequest("POST", targetURL+"/api/v1/points/pay", nil)
		req.Header.Set("X-Forwarded-User", user)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&successPaid, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		case 403:
			atomic.AddUint64(&fail403, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	paid := atomic.LoadUint64(&successPaid)
	f400 := atomic.LoadUint64(&fail400)
	f403 := atomic.LoadUint64(&fail403)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"paid":              paid,
		"balance_exhausted": f400,
		"forbidden":         f403,
		"duplicates":        f409,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create("loadgen_results.json")
	if err != nil {
		log.Fatalf("write results: %v", err)
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
	fmt.Println("results written to loadgen_results.json")
}
