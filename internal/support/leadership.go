package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leadershipRetryDelay = time.Second
	renewalTimeout       = 5 * time.Second
	minRenewalInterval   = time.Second
)

var (
	leaderCounter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunWithLeader holds a Redis leadership lock around run. Only one process per
// lock key executes run at a time; the lock is renewed in the background and
// run's context is cancelled when leadership is lost. The scheduled jobs use
// this so detection, retention sweeps and reports fire once per deployment,
// not once per replica.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session, err := acquireLeaderSession(ctx, client, key, ttl)
		if err != nil {
			return err
		}

		log.Debug("leader lock: acquired", "key", key)
		run(session.ctx)
		session.Close()
		log.Debug("leader lock: released", "key", key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leadershipRetryDelay):
		}
	}
}

type leaderSession struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

func acquireLeaderSession(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*leaderSession, error) {
	value := leaderID()

	for {
		ok, err := client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("leader lock: setnx failed", "key", key, "error", err)
		}

		if ok {
			sessionCtx, cancel := context.WithCancel(ctx)
			session := &leaderSession{
				client:    client,
				key:       key,
				value:     value,
				ttl:       ttl,
				ctx:       sessionCtx,
				cancel:    cancel,
				stopRenew: make(chan struct{}),
			}
			go session.renewLoop()
			return session, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leadershipRetryDelay):
		}
	}
}

func (ls *leaderSession) Close() {
	ls.closeOnce.Do(func() {
		close(ls.stopRenew)
		ls.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
		defer cancel()

		if _, err := releaseScript.Run(ctx, ls.client, []string{ls.key}, ls.value).Result(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("leader lock: release failed", "key", ls.key, "error", err)
		}
	})
}

func (ls *leaderSession) renewLoop() {
	interval := ls.ttl / 3
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ls.stopRenew:
			return
		case <-ls.ctx.Done():
			return
		case <-ticker.C:
			if err := ls.renew(); err != nil {
				log.Warn("leader lock: renewal failed", "key", ls.key, "error", err)
				ls.cancel()
				return
			}
		}
	}
}

func (ls *leaderSession) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, ls.client, []string{ls.key}, ls.value, ls.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}
	return nil
}

func leaderID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), leaderCounter.Add(1))
}
