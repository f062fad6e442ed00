package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
)

type stubSweeper struct {
	mu       sync.Mutex
	requests []domain.SweepRequest
	fail     map[string]error
	perCity  int
	running  int32
	maxSeen  int32
	delay    time.Duration
}

func (s *stubSweeper) Sweep(_ context.Context, req domain.SweepRequest) (int, error) {
	cur := atomic.AddInt32(&s.running, 1)
	defer atomic.AddInt32(&s.running, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if err := s.fail[req.City]; err != nil {
		return 0, err
	}
	return s.perCity, nil
}

func (s *stubSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *memCache) Once(_ context.Context, key string, _ time.Duration, fn func() error) error {
	c.mu.Lock()
	if c.keys[key] {
		c.mu.Unlock()
		return nil
	}
	c.keys[key] = true
	c.mu.Unlock()
	if err := fn(); err != nil {
		c.mu.Lock()
		delete(c.keys, key)
		c.mu.Unlock()
		return err
	}
	return nil
}

var allCities = []string{"minsk", "brest", "grodno", "gomel", "vitebsk", "mogilev"}

func TestSweepAllCoversEveryCityWithinLimit(t *testing.T) {
	sweeper := &stubSweeper{perCity: 2, delay: 10 * time.Millisecond}
	s := NewScheduler(sweeper, nil, Config{Cities: allCities, Concurrency: 2}, zerolog.Nop())

	total := s.SweepAll(context.Background())
	if total != 12 {
		t.Fatalf("ожидали 12 новых, получили %d", total)
	}
	var cities []string
	for _, r := range sweeper.requests {
		if r.Requester != domain.DefaultRequester || r.Trigger != domain.TriggerScheduled || !r.Filter.IsZero() {
			t.Fatalf("плановый проход должен идти без фильтров от default: %+v", r)
		}
		cities = append(cities, r.City)
	}
	sort.Strings(cities)
	if len(cities) != len(allCities) {
		t.Fatalf("ожидали %d городов, получили %v", len(allCities), cities)
	}
	if sweeper.maxSeen > 2 {
		t.Fatalf("превышен лимит параллельности: %d", sweeper.maxSeen)
	}
}

func TestTriggerIsolatesCityFailures(t *testing.T) {
	sweeper := &stubSweeper{perCity: 1, fail: map[string]error{"brest": errors.New("boom")}}
	s := NewScheduler(sweeper, nil, Config{Cities: []string{"minsk", "brest", "gomel"}, Concurrency: 3}, zerolog.Nop())

	total, err := s.Trigger(context.Background(), domain.SweepRequest{Trigger: domain.TriggerScheduled})
	if err == nil {
		t.Fatal("ожидали ошибку города brest")
	}
	if total != 2 {
		t.Fatalf("остальные города должны отработать, получили %d", total)
	}
	if sweeper.count() != 3 {
		t.Fatalf("ожидали 3 прохода, получили %d", sweeper.count())
	}
}

func TestTriggerSingleCity(t *testing.T) {
	sweeper := &stubSweeper{perCity: 3}
	s := NewScheduler(sweeper, nil, Config{Cities: allCities}, zerolog.Nop())
	rooms := 2
	req := domain.SweepRequest{City: "grodno", Requester: "42", Filter: domain.SearchFilter{Rooms: &rooms}}

	n, err := s.Trigger(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || sweeper.count() != 1 {
		t.Fatalf("ожидали один проход с 3 новыми, получили n=%d calls=%d", n, sweeper.count())
	}
	got := sweeper.requests[0]
	if got.City != "grodno" || got.Requester != "42" || got.Trigger != domain.TriggerAdHoc || *got.Filter.Rooms != 2 {
		t.Fatalf("неожиданный запрос %+v", got)
	}
}

func TestTriggerUnknownCity(t *testing.T) {
	s := NewScheduler(&stubSweeper{}, nil, Config{Cities: allCities}, zerolog.Nop())
	if _, err := s.Trigger(context.Background(), domain.SweepRequest{City: "paris"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
}

func TestTriggerAdHocIsDebounced(t *testing.T) {
	sweeper := &stubSweeper{perCity: 1}
	cache := &memCache{keys: map[string]bool{}}
	s := NewScheduler(sweeper, cache, Config{Cities: allCities, Cooldown: time.Minute}, zerolog.Nop())
	req := domain.SweepRequest{City: "minsk", Requester: "42", Trigger: domain.TriggerAdHoc}

	for i := 0; i < 3; i++ {
		if _, err := s.Trigger(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if sweeper.count() != 1 {
		t.Fatalf("ожидали один проход за окно, получили %d", sweeper.count())
	}

	other := req
	other.Requester = "43"
	if _, err := s.Trigger(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if sweeper.count() != 2 {
		t.Fatalf("другой запрашивающий не должен дедуплицироваться, получили %d", sweeper.count())
	}
}

func TestScheduledSweepsAreNotDebounced(t *testing.T) {
	sweeper := &stubSweeper{}
	cache := &memCache{keys: map[string]bool{}}
	s := NewScheduler(sweeper, cache, Config{Cities: []string{"minsk"}, Cooldown: time.Minute}, zerolog.Nop())
	s.SweepAll(context.Background())
	s.SweepAll(context.Background())
	if sweeper.count() != 2 {
		t.Fatalf("плановые проходы не дедуплицируются, получили %d", sweeper.count())
	}
}

func TestRunSweepsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &stubSweeper{}
	s := NewScheduler(sweeper, nil, Config{Cities: []string{"minsk"}, Interval: 20 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for sweeper.count() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("ожидали минимум 3 прохода, получили %d", sweeper.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run вернул ошибку: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
