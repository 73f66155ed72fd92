// README: Smoke cases for the dispatch API: environment, booking lifecycle, assignment and load checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// ids remembers bookings created by earlier cases, keyed by case label.
	ids map[string]string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		ids:   make(map[string]string),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: tables exist", Run: checkTables},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
			},
		},
		{
			Name: "API: list drivers",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/drivers", nil, http.StatusOK, func(body map[string]any) error {
					if ds, _ := body["drivers"].([]any); len(ds) == 0 {
						return fmt.Errorf("no drivers seeded")
					}
					return nil
				})
			},
		},

		// Booking lifecycle
		r.createCase("Booking: create", "first", "10:00"),
		{
			Name: "Booking: invalid time -> 400",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/bookings", r.bookingBody("7pm"), http.StatusBadRequest, nil)
			},
		},
		{
			Name: "Booking: unknown customer -> 404",
			Run: func(ctx context.Context, r *Runner) Result {
				body := r.bookingBody("10:00")
				body["customer_id"] = "C999999"
				return r.expect(ctx, http.MethodPost, "/api/bookings", body, http.StatusNotFound, nil)
			},
		},
		r.bookingCase("Booking: edit pending", "first", http.MethodPatch, "", map[string]any{"time": "10:15"}, http.StatusOK),
		r.bookingCase("Dispatch: recommendations", "first", http.MethodGet, "/recommendations?n=3", nil, http.StatusOK),
		r.bookingCase("Dispatch: auto-assign", "first", http.MethodPost, "/assign", map[string]any{}, http.StatusOK),
		r.bookingCase("Booking: edit assigned -> 409", "first", http.MethodPatch, "", map[string]any{"time": "11:00"}, http.StatusConflict),
		r.bookingCase("Booking: complete", "first", http.MethodPost, "/complete", nil, http.StatusOK),
		r.bookingCase("Booking: cancel completed -> 409", "first", http.MethodPost, "/cancel", nil, http.StatusConflict),

		r.createCase("Booking: create second", "second", "18:00"),
		r.bookingCase("Booking: cancel pending", "second", http.MethodPost, "/cancel", nil, http.StatusOK),
		r.bookingCase("Dispatch: assign cancelled -> 409", "second", http.MethodPost, "/assign", map[string]any{}, http.StatusConflict),

		{
			Name: "Booking: create with auto_assign",
			Run: func(ctx context.Context, r *Runner) Result {
				body := r.bookingBody("22:00")
				body["auto_assign"] = true
				return r.expect(ctx, http.MethodPost, "/api/bookings", body, http.StatusCreated, func(resp map[string]any) error {
					id, _ := resp["id"].(string)
					if id == "" {
						return fmt.Errorf("response has no id")
					}
					r.ids["auto"] = id
					if status, _ := resp["status"].(string); status != "Assigned" && status != "Pending" {
						return fmt.Errorf("unexpected status %q", status)
					}
					return nil
				})
			},
		},
		r.bookingCase("Booking: cancel auto-assigned", "auto", http.MethodPost, "/cancel", nil, http.StatusOK),
		{
			Name: "Dispatch: assign all pending",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/bookings/assign-pending", nil, http.StatusOK, func(body map[string]any) error {
					if _, ok := body["pending"].(float64); !ok {
						return fmt.Errorf("response has no pending count")
					}
					return nil
				})
			},
		},
		{
			Name: "Admin: statistics",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/stats", nil, http.StatusOK, func(body map[string]any) error {
					if n, _ := body["bookings"].(float64); n < 1 {
						return fmt.Errorf("bookings=%v, want at least 1", body["bookings"])
					}
					return nil
				})
			},
		},
		{
			Name: "Admin: list customers",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/customers", nil, http.StatusOK, nil)
			},
		},
		{
			Name: "Driver: nearby",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/drivers/nearby?lat=40.758&lng=-73.9855&radius_km=50", nil, http.StatusOK, nil)
			},
		},
		{
			Name: "Driver: nearby bad coords -> 400",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/drivers/nearby?lat=123&lng=456", nil, http.StatusBadRequest, nil)
			},
		},

		// Concurrency
		{Name: "Concurrency: auto-assign never double-books", Run: concurrentAssign},

		// Load
		{
			Name: "Load: list bookings throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, "/api/bookings")
			},
		},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusSkip, Note: "dsn not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass}
}

func (r *Runner) bookingBody(clock string) map[string]any {
	return map[string]any{
		"customer_id": r.cfg.CustomerID,
		"pickup":      map[string]any{"label": "Times Square", "location": map[string]any{"lat": 40.758, "lng": -73.9855}},
		"dropoff":     map[string]any{"label": "Penn Station", "location": map[string]any{"lat": 40.7506, "lng": -73.9935}},
		"date":        r.cfg.Date,
		"time":        clock,
	}
}

func (r *Runner) createCase(name, label, clock string) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/bookings", r.bookingBody(clock), http.StatusCreated, func(body map[string]any) error {
				id, _ := body["id"].(string)
				if id == "" {
					return fmt.Errorf("response has no id")
				}
				r.ids[label] = id
				return nil
			})
		},
	}
}

// bookingCase calls /api/bookings/<id><suffix> for the booking created under label.
func (r *Runner) bookingCase(name, label, method, suffix string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			id := r.ids[label]
			if id == "" {
				return Result{Status: StatusSkip, Note: "no booking for " + label}
			}
			return r.expect(ctx, method, "/api/bookings/"+id+suffix, body, want, nil)
		},
	}
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, want int, check func(map[string]any) error) Result {
	start := time.Now()
	status, payload, err := r.call(ctx, method, path, body)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	if check != nil {
		if err := check(payload); err != nil {
			return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
		}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&payload)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, payload, nil
}

// concurrentAssign books the same slot several times and auto-assigns all of
// them at once; no driver may end up with two of them.
func concurrentAssign(ctx context.Context, r *Runner) Result {
	n := r.cfg.Concurrency
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		status, body, err := r.call(ctx, http.MethodPost, "/api/bookings", r.bookingBody("06:00"))
		if err != nil || status != http.StatusCreated {
			return Result{Status: StatusFail, Note: fmt.Sprintf("create: status=%d err=%v", status, err)}
		}
		id, _ := body["id"].(string)
		ids = append(ids, id)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	drivers := map[string]int{}
	assigned, refused := 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, body, err := r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/assign", map[string]any{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
			case status == http.StatusOK:
				assigned++
				if d, _ := body["driver_id"].(string); d != "" {
					drivers[d]++
				}
			case status == http.StatusConflict:
				refused++
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		_, _, _ = r.call(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", nil)
	}
	for d, count := range drivers {
		if count > 1 {
			return Result{Status: StatusFail, Note: fmt.Sprintf("driver %s assigned %d times", d, count)}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("assigned=%d refused=%d", assigned, refused)}
}

func perfLoad(ctx context.Context, r *Runner, method, path string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, method, path, nil)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
