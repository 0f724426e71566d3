// README: Bench cases: environment checks, lifecycle walk-through, accept/confirm races, and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"rideshare/internal/migrate"
	"rideshare/internal/modules/ride"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	runID string

	driver  user
	rider   user
	racers  []user
	offerID string
}

type user struct {
	token string
	id    string
}

type Result struct {
	Name    string
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
		runID: uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
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
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, "", http.StatusOK)
		}},
		{Name: "Accounts: register and login", Run: signUpAll},
		{Name: "Ride: post offer", Run: postOffer},
		{Name: "Ride: post with past date -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides", map[string]string{
				"rideType": "offer", "from": "A", "to": "B", "dateTime": "01-01-2001 09:00 AM",
			}, r.driver.token, http.StatusBadRequest)
		}},
		{Name: "Ride: offer visible to others", Run: offerVisible},
		{Name: "Concurrency: many accept one ride", Run: concurrentAccept},
		{Name: "Ride: edit after accept -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return Result{Status: statusSkip, Note: "no ride"}
			}
			return r.expect(ctx, http.MethodPut, "/api/rides/"+r.offerID, map[string]string{
				"from": "A", "to": "B", "dateTime": futureDateTime(),
			}, r.driver.token, http.StatusConflict)
		}},
		{Name: "Ride: both confirm finalizes once", Run: confirmAndSettle},
		{Name: "Concurrency: parallel confirms settle once", Run: concurrentConfirm},
		{Name: "Perf: list rides throughput", Run: func(ctx context.Context, r *Runner) Result {
			return r.load(ctx, http.MethodGet, "/api/rides?view=othersOffers", nil)
		}},
		{Name: "Perf: post ride throughput", Run: func(ctx context.Context, r *Runner) Result {
			return r.load(ctx, http.MethodPost, "/api/rides", map[string]string{
				"rideType": "request", "from": "Dorm", "to": "Station", "dateTime": futureDateTime(),
			})
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not set"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not set"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	if err := migrate.ApplyFile(ctx, r.db, r.cfg.MigrationPath); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not set"}
	}
	tables, err := migrate.Tables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func signUpAll(ctx context.Context, r *Runner) Result {
	start := time.Now()
	var err error
	if r.driver, err = r.signUp(ctx, "driver"); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if r.rider, err = r.signUp(ctx, "rider"); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for i := 0; i < r.cfg.Concurrency; i++ {
		u, err := r.signUp(ctx, fmt.Sprintf("racer%d", i))
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		r.racers = append(r.racers, u)
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("users=%d", 2+len(r.racers))}
}

func postOffer(ctx context.Context, r *Runner) Result {
	if r.driver.token == "" {
		return Result{Status: statusSkip, Note: "no driver session"}
	}
	id, latency, err := r.postRide(ctx, r.driver.token, "offer")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	r.offerID = id
	return Result{Status: statusPass, Latency: latency, Note: "id=" + id}
}

func offerVisible(ctx context.Context, r *Runner) Result {
	if r.offerID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	var out struct {
		Rides []struct {
			ID string `json:"id"`
		} `json:"rides"`
	}
	status, latency, err := r.call(ctx, http.MethodGet, "/api/rides?view=othersOffers", nil, r.rider.token, &out)
	if err != nil || status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d err=%v", status, err)}
	}
	for _, rd := range out.Rides {
		if rd.ID == r.offerID {
			return Result{Status: statusPass, Latency: latency}
		}
	}
	return Result{Status: statusFail, Note: "offer missing from othersOffers"}
}

// concurrentAccept has the rider and every racer accept the same offer at once.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.offerID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	contenders := append([]user{r.rider}, r.racers...)
	statuses := r.race(ctx, contenders, http.MethodPost, "/api/rides/"+r.offerID+"/accept")

	succ, conflicts := statuses[http.StatusOK], statuses[http.StatusConflict]
	note := fmt.Sprintf("success=%d conflict=%d of %d", succ, conflicts, len(contenders))
	if succ != 1 || succ+conflicts != len(contenders) {
		return Result{Status: statusFail, Note: note}
	}

	// The winner plays the rider from here on.
	var got struct {
		RiderID *string `json:"riderId"`
	}
	if _, _, err := r.call(ctx, http.MethodGet, "/api/rides/"+r.offerID, nil, r.driver.token, &got); err == nil && got.RiderID != nil {
		for _, u := range contenders {
			if u.id == *got.RiderID {
				r.rider = u
			}
		}
	}
	return Result{Status: statusPass, Note: note}
}

func confirmAndSettle(ctx context.Context, r *Runner) Result {
	if r.offerID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	driverBefore, riderBefore := r.balance(ctx, r.driver), r.balance(ctx, r.rider)

	var res struct {
		Finalized bool   `json:"finalized"`
		Warning   string `json:"warning"`
	}
	if status, _, err := r.call(ctx, http.MethodPost, "/api/rides/"+r.offerID+"/confirm", nil, r.driver.token, &res); err != nil || status != http.StatusOK || res.Finalized {
		return Result{Status: statusFail, Note: fmt.Sprintf("driver confirm status=%d finalized=%v err=%v", status, res.Finalized, err)}
	}
	status, latency, err := r.call(ctx, http.MethodPost, "/api/rides/"+r.offerID+"/confirm", nil, r.rider.token, &res)
	if err != nil || status != http.StatusOK || !res.Finalized {
		return Result{Status: statusFail, Note: fmt.Sprintf("rider confirm status=%d finalized=%v err=%v", status, res.Finalized, err)}
	}
	if res.Warning != "" {
		return Result{Status: statusFail, Note: "ledger warning: " + res.Warning}
	}
	return r.checkTransfer(ctx, latency, driverBefore, riderBefore)
}

// concurrentConfirm posts a fresh offer and has both parties confirm it from many goroutines.
func concurrentConfirm(ctx context.Context, r *Runner) Result {
	if r.driver.token == "" || r.rider.token == "" {
		return Result{Status: statusSkip, Note: "no sessions"}
	}
	id, _, err := r.postRide(ctx, r.driver.token, "offer")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status, _, err := r.call(ctx, http.MethodPost, "/api/rides/"+id+"/accept", nil, r.rider.token, nil); err != nil || status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("accept status=%d err=%v", status, err)}
	}
	driverBefore, riderBefore := r.balance(ctx, r.driver), r.balance(ctx, r.rider)

	contenders := make([]user, 0, 2*r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		contenders = append(contenders, r.driver, r.rider)
	}
	start := time.Now()
	statuses := r.race(ctx, contenders, http.MethodPost, "/api/rides/"+id+"/confirm")
	latency := time.Since(start)
	// Late confirms may find the ride already gone.
	if statuses[http.StatusOK]+statuses[http.StatusNotFound] != len(contenders) {
		return Result{Status: statusFail, Note: fmt.Sprintf("statuses=%v", statuses)}
	}
	return r.checkTransfer(ctx, latency, driverBefore, riderBefore)
}

func (r *Runner) checkTransfer(ctx context.Context, latency time.Duration, driverBefore, riderBefore int64) Result {
	driverAfter, riderAfter := r.balance(ctx, r.driver), r.balance(ctx, r.rider)
	note := fmt.Sprintf("driver %d->%d rider %d->%d", driverBefore, driverAfter, riderBefore, riderAfter)
	if driverAfter-driverBefore != r.cfg.Points || riderBefore-riderAfter != r.cfg.Points {
		return Result{Status: statusFail, Latency: latency, Note: note}
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

func (r *Runner) race(ctx context.Context, contenders []user, method, path string) map[int]int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	start := make(chan struct{})
	for _, u := range contenders {
		wg.Add(1)
		go func(u user) {
			defer wg.Done()
			<-start
			status, _, err := r.call(ctx, method, path, nil, u.token, nil)
			if err != nil {
				status = -1
			}
			mu.Lock()
			statuses[status]++
			mu.Unlock()
		}(u)
	}
	close(start)
	wg.Wait()
	return statuses
}

func (r *Runner) load(ctx context.Context, method, path string, body any) Result {
	if r.driver.token == "" {
		return Result{Status: statusSkip, Note: "no session"}
	}
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu             sync.Mutex
		wg             sync.WaitGroup
		count, errored int64
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, method, path, body, r.driver.token, nil)
				mu.Lock()
				if err != nil || status >= 400 {
					errored++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests succeeded errors=%d", errored)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errored)}
}

func (r *Runner) signUp(ctx context.Context, name string) (user, error) {
	creds := map[string]string{
		"email":    fmt.Sprintf("bench-%s-%s@example.com", r.runID, name),
		"password": "bench-password",
	}
	if status, _, err := r.call(ctx, http.MethodPost, "/api/accounts/register", creds, "", nil); err != nil || status != http.StatusCreated {
		return user{}, fmt.Errorf("register %s: status=%d err=%v", name, status, err)
	}
	var session struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if status, _, err := r.call(ctx, http.MethodPost, "/api/accounts/login", creds, "", &session); err != nil || status != http.StatusOK {
		return user{}, fmt.Errorf("login %s: status=%d err=%v", name, status, err)
	}
	return user{token: session.Token, id: session.UserID}, nil
}

func (r *Runner) postRide(ctx context.Context, token, rideType string) (string, time.Duration, error) {
	var out struct {
		ID string `json:"id"`
	}
	status, latency, err := r.call(ctx, http.MethodPost, "/api/rides", map[string]string{
		"rideType": rideType, "from": "Campus", "to": "Airport", "dateTime": futureDateTime(),
	}, token, &out)
	if err != nil || status != http.StatusCreated {
		return "", latency, fmt.Errorf("post ride: status=%d err=%v", status, err)
	}
	return out.ID, latency, nil
}

func (r *Runner) balance(ctx context.Context, u user) int64 {
	var out struct {
		Balance int64 `json:"balance"`
	}
	_, _, _ = r.call(ctx, http.MethodGet, "/api/points", nil, u.token, &out)
	return out.Balance
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, token string, want int) Result {
	status, latency, err := r.call(ctx, method, path, body, token, nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

// call sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (r *Runner) call(ctx context.Context, method, path string, body any, token string, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
		return resp.StatusCode, latency, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func futureDateTime() string {
	return ride.FormatDateTime(time.Now().Add(48*time.Hour), time.Local)
}
