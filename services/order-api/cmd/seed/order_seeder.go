// Order seeder with per-second outbound request throttling.
// - Concurrency is controlled by a fixed worker pool (maxConcurrentRequests)
// - Throughput is controlled by an RPS limiter (token bucket)
// - Uses a single shared HTTP client with keep-alives and timeouts
// - Graceful shutdown on SIGINT/SIGTERM
//
// Example:
//
//	go run ./services/order-api/cmd/seed \
//	  -noOfOrders=10000 \
//	  -noOfUsers=500 \
//	  -maxConcurrentRequests=100 \
//	  -rps=400 \
//	  -orderApiUrl=http://localhost:8080
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tradeflow/tradeflow-engine/pkg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// --------- CLI flags ---------
var (
	noOfOrders            = flag.Int("noOfOrders", 100, "Total number of orders to seed")
	noOfUsers             = flag.Int("noOfUsers", 10, "Number of distinct user ids to spread orders over")
	maxConcurrentRequests = flag.Int("maxConcurrentRequests", 10, "Max in-flight HTTP requests (worker pool size)")
	minOrderAmount        = flag.Float64("minOrderAmount", 1.0, "Min order amount")
	maxOrderAmount        = flag.Float64("maxOrderAmount", 500.0, "Max order amount")
	orderApiURL           = flag.String("orderApiUrl", "http://localhost:8080", "Order API base URL")
	rps                   = flag.Int("rps", 200, "Global requests-per-second limit for outbound POST /orders")
	rpsBurst              = flag.Int("rpsBurst", 0, "Burst size for the limiter (0 => equals rps)")
	httpClientTimeoutMs   = flag.Int("httpClientTimeoutMs", 4000, "Total HTTP client timeout (ms)")
)

var items = []string{
	"Widget", "Gadget", "Sprocket", "Flange", "Gear", "Cog", "Bearing", "Bracket",
}

type seedOrder struct {
	UserID int64   `json:"userId"`
	Item   string  `json:"item"`
	Amount float64 `json:"amount"`
}

type seeder struct {
	apiURL     string
	workers    int
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *zap.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

func main() {
	flag.Parse()
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync()

	burst := *rpsBurst
	if burst <= 0 {
		burst = *rps
	}

	s := &seeder{
		apiURL:  *orderApiURL,
		workers: *maxConcurrentRequests,
		limiter: rate.NewLimiter(rate.Limit(*rps), burst),
		httpClient: &http.Client{
			Timeout: time.Duration(*httpClientTimeoutMs) * time.Millisecond,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: 1000,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("seeder interrupted; draining")
		cancel()
	}()

	start := time.Now()
	s.run(ctx, *noOfOrders, *noOfUsers)
	logger.Info("seeding finished",
		zap.Int64("sent", s.sent.Load()),
		zap.Int64("failed", s.failed.Load()),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *seeder) run(ctx context.Context, total, users int) {
	jobs := make(chan seedOrder)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				if err := s.limiter.Wait(ctx); err != nil {
					return // context canceled
				}
				s.post(ctx, order)
			}
		}()
	}

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		default:
		}
		amount := *minOrderAmount + rand.Float64()*(*maxOrderAmount-*minOrderAmount)
		jobs <- seedOrder{
			UserID: int64(rand.Intn(users) + 1),
			Item:   items[rand.Intn(len(items))],
			Amount: float64(int(amount*100)) / 100, // 2 fractional digits
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *seeder) post(ctx context.Context, order seedOrder) {
	body, _ := json.Marshal(order)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/orders", s.apiURL), bytes.NewReader(body))
	if err != nil {
		s.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("seed request failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		s.failed.Add(1)
		s.logger.Warn("seed request rejected", zap.Int("status", resp.StatusCode))
		return
	}
	s.sent.Add(1)
}
