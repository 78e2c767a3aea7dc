package dmloop

import (
	"context"
	"testing"
	"time"

	"dm_go/pkg/instagram/loop_mutex"
)

func waitStopped(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for r.Running() {
		if time.Now().After(deadline) {
			t.Fatal("цикл должен был завершиться")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Естественное завершение цикла (исчерпанная квота) отменяет его
// контекст и отпускает замок аккаунта: без этого контекст утекает, а
// повторный запуск вечно получает отказ.
func TestRunnerReleasesContextOnNaturalExit(t *testing.T) {
	accounts := &fakeAccounts{account: activeAccount()}
	quota := &fakeQuota{count: 80, limit: 80}
	s, _ := newTestScheduler(accounts, &fakeLeads{}, quota, &fakeSender{})

	// Первое ожидание окна фиксирует контекст цикла.
	var runCtx context.Context
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		runCtx = ctx
		return nil
	}
	until := time.Minute
	s.msUntilWindow = func(string) time.Duration {
		d := until
		until = 0
		return d
	}

	r := NewRunner(s)
	if msg, ok := r.Start("runner_natural_exit"); !ok {
		t.Fatalf("запуск должен проходить: %s", msg)
	}
	waitStopped(t, r)

	if runCtx == nil {
		t.Fatal("цикл должен был дойти до ожидания окна")
	}
	if runCtx.Err() != context.Canceled {
		t.Fatalf("контекст завершённого цикла должен быть отменён, получили %v", runCtx.Err())
	}
	if !loop_mutex.TryLock("runner_natural_exit") {
		t.Fatal("замок аккаунта должен освобождаться после завершения")
	}
	loop_mutex.Unlock("runner_natural_exit")
}

func TestRunnerRejectsSecondStart(t *testing.T) {
	accounts := &fakeAccounts{account: activeAccount()}
	s, _ := newTestScheduler(accounts, &fakeLeads{}, &fakeQuota{limit: 80}, &fakeSender{})

	// Держим цикл живым на первом же ожидании, пока идёт проверка.
	release := make(chan struct{})
	s.msUntilWindow = func(string) time.Duration { return time.Minute }
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}

	r := NewRunner(s)
	if msg, ok := r.Start("runner_second_start"); !ok {
		t.Fatalf("первый запуск должен проходить: %s", msg)
	}
	if _, ok := r.Start("runner_second_start"); ok {
		t.Fatal("повторный запуск работающего цикла должен отклоняться")
	}

	r.Stop()
	close(release)
	waitStopped(t, r)
}
