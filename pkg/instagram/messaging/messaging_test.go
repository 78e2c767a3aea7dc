package messaging

import (
	"context"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Outcome
	}{
		{403, TempBlock},
		{200, DmAllowed},
		{201, Unknown},
		{429, Unknown},
		{500, Unknown},
	}
	for _, c := range cases {
		if got := classifyStatus(c.status); got != c.want {
			t.Errorf("статус %d: получили %s, ждали %s", c.status, got, c.want)
		}
	}
}

func TestGateDecisionAllowsOnlyDmAllowed(t *testing.T) {
	proceed, res := gateDecision(DmAllowed)
	if !proceed {
		t.Fatal("DmAllowed должен разрешать печать")
	}
	if res.TempBlock || res.Err != "" {
		t.Fatalf("разрешённый исход не должен нести ошибку: %+v", res)
	}

	for _, outcome := range []Outcome{TempBlock, Unknown, NoResponse} {
		proceed, res := gateDecision(outcome)
		if proceed {
			t.Errorf("%s не должен разрешать печать", outcome)
		}
		if res.Err == "" {
			t.Errorf("%s должен возвращать текст ошибки", outcome)
		}
	}
}

// 403 — сигнал общей блокировки, он должен быть помечен отдельно от
// остальных отказов: по нему останавливается весь цикл рассылки.
func TestGateDecisionMarksTempBlock(t *testing.T) {
	_, res := gateDecision(TempBlock)
	if !res.TempBlock {
		t.Fatal("403 должен помечаться как временная блокировка")
	}

	for _, outcome := range []Outcome{Unknown, NoResponse} {
		_, res := gateDecision(outcome)
		if res.TempBlock {
			t.Errorf("%s не должен помечаться как блокировка", outcome)
		}
	}
}

// Молчание бэкенда — запрет: если подходящий ответ не пришёл за
// отведённое время, канал отдаёт NoResponse, а не висит.
func TestListenerTimesOutToNoResponse(t *testing.T) {
	silent := func(ctx context.Context, _ func(url string, status int) bool) {
		<-ctx.Done()
	}

	select {
	case outcome := <-listenForVerdict(silent, 50*time.Millisecond):
		if outcome != NoResponse {
			t.Fatalf("тишина должна давать NoResponse, получили %s", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("вердикт должен приходить после таймаута слушателя")
	}
}

// Слушатель взводится до клика, поэтому ответ, пришедший раньше, чем
// его начали ждать, всё равно попадает в вердикт.
func TestListenerCatchesResponseBeforeRead(t *testing.T) {
	feed := func(_ context.Context, handle func(url string, status int) bool) {
		handle("https://static.cdninstagram.com/bundle.js", 200)
		handle("https://www.instagram.com/api/v1/direct_v2/create_group_thread/", 403)
	}

	ch := listenForVerdict(feed, time.Second)
	time.Sleep(20 * time.Millisecond)

	select {
	case outcome := <-ch:
		if outcome != TempBlock {
			t.Fatalf("403 от бэкенда должен давать TempBlock, получили %s", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("вердикт должен быть доставлен")
	}
}

// Посторонние ответы не завершают слушатель: вердикт выносит только
// вызов создания диалога.
func TestListenerIgnoresUnrelatedResponses(t *testing.T) {
	feed := func(ctx context.Context, handle func(url string, status int) bool) {
		if handle("https://www.instagram.com/api/v1/direct_v2/inbox/", 403) {
			return
		}
		<-ctx.Done()
	}

	select {
	case outcome := <-listenForVerdict(feed, 50*time.Millisecond):
		if outcome != NoResponse {
			t.Fatalf("посторонний 403 не должен выносить вердикт, получили %s", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("вердикт должен приходить после таймаута слушателя")
	}
}

func TestMatchesDmBackend(t *testing.T) {
	if !matchesDmBackend("https://www.instagram.com/api/v1/direct_v2/create_group_thread/") {
		t.Fatal("вызов создания диалога должен распознаваться")
	}
	if matchesDmBackend("https://www.instagram.com/api/v1/direct_v2/inbox/") {
		t.Fatal("прочие вызовы direct_v2 не должны распознаваться")
	}
	if matchesDmBackend("https://static.cdninstagram.com/bundle.js") {
		t.Fatal("статика не должна распознаваться")
	}
}
