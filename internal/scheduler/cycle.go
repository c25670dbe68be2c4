package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/lockstore"
	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
	"github.com/ZkAGI/pawpad-rofl/internal/risk"
	"github.com/ZkAGI/pawpad-rofl/internal/service"
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
	"github.com/ZkAGI/pawpad-rofl/internal/trade"
)

const (
	defaultConcurrency = 3
	defaultTaskTimeout = 3 * time.Minute

	// RunningLockKey is held for the whole of Run. Only one cycle trades at a
	// time, whatever its id.
	RunningLockKey = "cycle:running"

	releaseTimeout = 5 * time.Second
)

// Reasons a cycle stops before dispatching anything.
const (
	HaltTradingDisabled = "trading_disabled"
	HaltSwitchOff       = "auto_trading_off"
	HaltLocked          = "locked"
	HaltBusy            = "cycle_running"
	HaltLockError       = "lock_error"
	HaltNoSignals       = "no_fresh_signals"
	HaltUsersError      = "users_error"
)

type Summary struct {
	CycleID      string                `json:"cycle_id"`
	Started      time.Time             `json:"started"`
	Finished     time.Time             `json:"finished"`
	Tasks        int                   `json:"tasks"`
	Succeeded    int                   `json:"succeeded"`
	Failed       int                   `json:"failed"`
	Skipped      int                   `json:"skipped"`
	SignalsFresh map[signal.Asset]bool `json:"signals_fresh"`
	Halted       string                `json:"halted,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task trade.Task) trade.Attempt
}

type Switches interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// Cycle runs one trading round: signals in, one dispatch per (user, asset).
type Cycle struct {
	Disabled    bool
	Concurrency int
	TaskTimeout time.Duration
	LockTTL     time.Duration

	Fetcher    signal.Fetcher
	Users      repository.UserRepository
	Dispatcher Dispatcher
	Guard      *risk.Guard
	Switches   Switches
	Locker     lockstore.Locker
	Logger     *zap.Logger
	Now        func() time.Time

	mu   sync.RWMutex
	last *Summary
}

func NewCycle(cfg config.TradingConfig, lockTTL time.Duration) *Cycle {
	return &Cycle{
		Disabled:    cfg.Disabled,
		Concurrency: cfg.Concurrency,
		TaskTimeout: cfg.TaskTimeout,
		LockTTL:     lockTTL,
	}
}

func (c *Cycle) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// LastSummary returns the most recent finished cycle, or nil.
func (c *Cycle) LastSummary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	out := *c.last
	return &out
}

func (c *Cycle) finish(sum Summary) Summary {
	sum.Finished = c.now()
	c.mu.Lock()
	c.last = &sum
	c.mu.Unlock()
	return sum
}

func (c *Cycle) Run(ctx context.Context, cycleID string) Summary {
	log := c.logger().With(zap.String("cycle_id", cycleID))
	sum := Summary{CycleID: cycleID, Started: c.now(), SignalsFresh: map[signal.Asset]bool{}}

	if c.Disabled {
		log.Info("trading disabled, cycle skipped")
		sum.Halted = HaltTradingDisabled
		return c.finish(sum)
	}
	if c.Switches != nil && !c.Switches.IsEnabled(ctx, service.FeatureAutoTrading, true) {
		log.Info("auto trading switched off, cycle skipped")
		sum.Halted = HaltSwitchOff
		return c.finish(sum)
	}
	if c.Locker != nil {
		ok, err := c.Locker.Acquire(ctx, RunningLockKey, c.LockTTL)
		if err != nil {
			log.Error("cycle running lock failed", zap.Error(err))
			sum.Halted = HaltLockError
			return c.finish(sum)
		}
		if !ok {
			log.Info("another cycle is running")
			sum.Halted = HaltBusy
			return c.finish(sum)
		}
		defer c.release(ctx, log, RunningLockKey)

		// The tick lock is never released: a tick id runs at most once, even
		// across replicas.
		ok, err = c.Locker.Acquire(ctx, "cycle:"+cycleID, c.LockTTL)
		if err != nil {
			log.Error("cycle lock failed", zap.Error(err))
			sum.Halted = HaltLockError
			return c.finish(sum)
		}
		if !ok {
			log.Info("cycle already ran")
			sum.Halted = HaltLocked
			return c.finish(sum)
		}
	}

	signals := c.fetchSignals(ctx, log)
	for _, asset := range signal.Assets {
		s, ok := signals[asset]
		if !ok {
			continue
		}
		fresh := c.Guard.Fresh(s.Timestamp)
		sum.SignalsFresh[asset] = fresh
		if !fresh {
			log.Warn("stale signal dropped",
				zap.String("asset", string(asset)),
				zap.Time("signal_ts", s.Timestamp),
			)
			delete(signals, asset)
		}
	}
	if len(signals) == 0 {
		log.Info("no fresh signals")
		sum.Halted = HaltNoSignals
		return c.finish(sum)
	}

	users, err := c.Users.ListTradingEnabledUsers(ctx)
	if err != nil {
		log.Error("load trading users failed", zap.Error(err))
		sum.Halted = HaltUsersError
		return c.finish(sum)
	}
	tasks := buildTasks(cycleID, users, signals)
	sum.Tasks = len(tasks)
	log.Info("cycle started", zap.Int("users", len(users)), zap.Int("tasks", len(tasks)))

	attempts := c.runTasks(ctx, log, tasks)
	for _, att := range attempts {
		switch att.Status {
		case trade.StatusSuccess:
			sum.Succeeded++
		case trade.StatusFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	sum = c.finish(sum)
	log.Info("cycle finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("took", sum.Finished.Sub(sum.Started)),
	)
	return sum
}

func (c *Cycle) release(ctx context.Context, log *zap.Logger, key string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.Locker.Release(rctx, key); err != nil {
		log.Warn("cycle lock release failed", zap.String("key", key), zap.Error(err))
	}
}

// fetchSignals queries every asset concurrently. A failed fetch only drops
// that asset.
func (c *Cycle) fetchSignals(ctx context.Context, log *zap.Logger) map[signal.Asset]signal.Signal {
	var (
		mu  sync.Mutex
		out = map[signal.Asset]signal.Signal{}
		wg  conc.WaitGroup
	)
	for _, asset := range signal.Assets {
		wg.Go(func() {
			s, err := c.Fetcher.Fetch(ctx, asset)
			if err != nil {
				log.Warn("signal fetch failed", zap.String("asset", string(asset)), zap.Error(err))
				return
			}
			mu.Lock()
			out[asset] = s
			mu.Unlock()
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		log.Error("signal fetch panicked", zap.String("panic", r.String()))
	}
	return out
}

func (c *Cycle) runTasks(ctx context.Context, log *zap.Logger, tasks []trade.Task) []trade.Attempt {
	n := c.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	timeout := c.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	attempts := make([]trade.Attempt, len(tasks))
	p := pool.New().WithMaxGoroutines(n)
	for i, task := range tasks {
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("trade task panicked",
						zap.String("uid", task.UID),
						zap.String("asset", string(task.Signal.Asset)),
						zap.Any("panic", r),
					)
					attempts[i] = trade.Attempt{
						UID:    task.UID,
						Asset:  task.Signal.Asset,
						Action: task.Signal.Action,
						Status: trade.StatusFailed,
						Err:    fmt.Errorf("task panic: %v", r),
					}
				}
			}()
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			attempts[i] = c.Dispatcher.Dispatch(tctx, task)
		})
	}
	p.Wait()
	return attempts
}

// buildTasks pairs each user with every fresh signal whose asset the user
// allows. Order is user order, then asset order.
func buildTasks(cycleID string, users []models.UserConfig, signals map[signal.Asset]signal.Signal) []trade.Task {
	var tasks []trade.Task
	for _, u := range users {
		allowed := AllowedAssets(u)
		for _, asset := range signal.Assets {
			s, ok := signals[asset]
			if !ok || !containsAsset(allowed, asset) {
				continue
			}
			tasks = append(tasks, trade.Task{
				CycleID:            cycleID,
				UID:                u.UID,
				AllowedAssets:      allowed,
				MaxTradeAmountUSDC: u.MaxTradeAmountUSDC,
				Signal:             s,
			})
		}
	}
	return tasks
}

// AllowedAssets decodes the user's jsonb asset list. Malformed lists allow
// nothing.
func AllowedAssets(u models.UserConfig) []string {
	if len(u.AllowedAssets) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(u.AllowedAssets, &out); err != nil {
		return nil
	}
	return out
}

func containsAsset(list []string, asset signal.Asset) bool {
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), string(asset)) {
			return true
		}
	}
	return false
}
