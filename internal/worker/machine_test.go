package worker

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"promokeys/internal/core"
	"promokeys/internal/keystore"
	"promokeys/internal/promo"
)

func TestMachine_RateLimitedThenGranted(t *testing.T) {
	api := &fakeAPI{
		registers: []registerReply{{result: promo.RateLimited}, {result: promo.Granted}},
		codes:     []codeReply{{code: "ABCD-1234"}},
	}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codes, _ := h.store.List(context.Background())
	if len(codes) != 1 || codes[0].Value != "ABCD-1234" || codes[0].Platform != "android" {
		t.Errorf("expected store {ABCD-1234}, got %v", codes)
	}
	if state.SurplusDelay != 2*time.Second {
		t.Errorf("expected surplus 2s, got %v", state.SurplusDelay)
	}
	if api.count("register") != 2 || state.Attempts != 2 {
		t.Errorf("expected 2 registration attempts, got %d calls / %d counted", api.count("register"), state.Attempts)
	}
	if state.Remaining != 0 || state.Produced != 1 || state.State != StateDone {
		t.Errorf("unexpected final state: %+v", state)
	}

	// base 1s with zero jitter, then 1s + 2s surplus
	want := []time.Duration{time.Second, 3 * time.Second}
	if got := h.clock.Sleeps(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected sleeps %v, got %v", want, got)
	}
}

func TestMachine_TwoUnitsBothSucceed(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codes, _ := h.store.List(context.Background())
	if len(codes) != 2 || codes[0].Value == codes[1].Value {
		t.Errorf("expected 2 distinct stored codes, got %v", codes)
	}
	if done := h.sink.OfKind(core.KindWorkerDone); len(done) != 1 {
		t.Errorf("expected exactly one completion event, got %d", len(done))
	}
	if state.Produced != 2 || state.Remaining != 0 {
		t.Errorf("unexpected final state: %+v", state)
	}
	// every unit starts with its own login
	wantCalls := []string{"login", "register", "create", "login", "register", "create"}
	if !reflect.DeepEqual(api.Calls(), wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, api.Calls())
	}
}

func TestMachine_EmptyCodeRestartsFromLogin(t *testing.T) {
	api := &fakeAPI{
		codes: []codeReply{{code: ""}, {code: "REAL-CODE"}},
	}
	h := newHarness(api, 0)

	if _, err := h.machine.Run(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCalls := []string{"login", "register", "create", "login", "register", "create"}
	if !reflect.DeepEqual(api.Calls(), wantCalls) {
		t.Errorf("expected a new login after the empty code, got %v", api.Calls())
	}
	codes, _ := h.store.List(context.Background())
	if len(codes) != 1 || codes[0].Value != "REAL-CODE" {
		t.Errorf("expected only REAL-CODE stored, got %v", codes)
	}
}

func TestMachine_RedemptionErrorRestartsFromLogin(t *testing.T) {
	api := &fakeAPI{
		codes: []codeReply{{err: promo.ErrTransport}, {code: "SECOND"}},
	}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Logins != 2 {
		t.Errorf("expected 2 logins, got %d", state.Logins)
	}
	if state.Produced != 1 {
		t.Errorf("a failed redemption must not count, produced=%d", state.Produced)
	}
}

func TestMachine_UnauthorizedDiscardsSession(t *testing.T) {
	api := &fakeAPI{
		registers: []registerReply{
			{result: promo.Pending},
			{result: promo.Pending},
			{result: promo.Unauthorized},
			{result: promo.Granted},
		},
	}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantCalls := []string{"login", "register", "register", "register", "login", "register", "create"}
	if !reflect.DeepEqual(api.Calls(), wantCalls) {
		t.Errorf("expected %v, got %v", wantCalls, api.Calls())
	}
	wantTokens := []string{"token-1", "token-1", "token-1", "token-2"}
	if !reflect.DeepEqual(api.registerTokens, wantTokens) {
		t.Errorf("the rejected token must never be reused, got %v", api.registerTokens)
	}
	if state.ConsecutivePending != 0 {
		t.Errorf("unauthorized must reset the pending streak, got %d", state.ConsecutivePending)
	}
	if state.Produced != 1 {
		t.Errorf("expected 1 produced, got %d", state.Produced)
	}
}

func TestMachine_PendingStreakReducesSurplus(t *testing.T) {
	tests := []struct {
		name        string
		replies     []promo.Result
		wantSurplus time.Duration
		wantStreak  int
	}{
		{"two pending", []promo.Result{promo.Pending, promo.Pending}, 0, 2},
		{"three pending", []promo.Result{promo.Pending, promo.Pending, promo.Pending}, -time.Second, 0},
		{"seven pending", repeat(promo.Pending, 7), -2 * time.Second, 1},
		{"rate limit breaks streak", []promo.Result{promo.Pending, promo.Pending, promo.RateLimited, promo.Pending}, 2 * time.Second, 1},
		{"unknown keeps streak", []promo.Result{promo.Pending, promo.Pending, promo.UnknownError, promo.Pending}, -time.Second, 0},
		{"only rate limits", repeat(promo.RateLimited, 4), 8 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			for _, r := range tt.replies {
				api.registers = append(api.registers, registerReply{result: r})
			}
			h := newHarness(api, 0)

			state, err := h.machine.Run(context.Background(), 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.SurplusDelay != tt.wantSurplus {
				t.Errorf("expected surplus %v, got %v", tt.wantSurplus, state.SurplusDelay)
			}
			if state.ConsecutivePending != tt.wantStreak {
				t.Errorf("expected streak %d, got %d", tt.wantStreak, state.ConsecutivePending)
			}
			if state.Attempts != len(tt.replies)+1 {
				t.Errorf("expected %d attempts, got %d", len(tt.replies)+1, state.Attempts)
			}
		})
	}
}

func TestMachine_SurplusNonDecreasingUnderRateLimits(t *testing.T) {
	api := &fakeAPI{registers: []registerReply{
		{result: promo.RateLimited}, {result: promo.RateLimited}, {result: promo.RateLimited},
	}}
	h := newHarness(api, 0)

	if _, err := h.machine.Run(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attempts := h.sink.OfKind(core.KindAttempt)
	if len(attempts) != 4 {
		t.Fatalf("expected 4 attempt events, got %d", len(attempts))
	}
	for i := 1; i < len(attempts); i++ {
		if diff := attempts[i].Delay - attempts[i-1].Delay; diff != 2*time.Second {
			t.Errorf("attempt %d: expected delay +2s, got %+v", i+1, diff)
		}
	}
}

func TestMachine_TransientErrorsChangeNothing(t *testing.T) {
	api := &fakeAPI{registers: []registerReply{
		{err: promo.ErrTransport},
		{result: promo.UnknownError},
		{err: promo.ErrTransport},
	}}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.SurplusDelay != 0 || state.ConsecutivePending != 0 {
		t.Errorf("transient errors must not change backoff state: %+v", state)
	}
	if state.Logins != 1 {
		t.Errorf("transient errors must not force a new login, got %d logins", state.Logins)
	}
	// only the UnknownError and the final grant consume an attempt
	if state.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", state.Attempts)
	}
	if api.count("register") != 4 {
		t.Errorf("expected 4 register calls, got %d", api.count("register"))
	}
}

func TestMachine_TransportErrorKeepsAttemptNumber(t *testing.T) {
	api := &fakeAPI{registers: []registerReply{
		{err: promo.ErrTransport},
		{result: promo.Granted},
	}}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", state.Attempts)
	}

	var numbers []int
	for _, e := range h.sink.OfKind(core.KindAttempt) {
		numbers = append(numbers, e.Attempt)
	}
	if len(numbers) != 2 || numbers[0] != 1 || numbers[1] != 1 {
		t.Errorf("expected attempt numbers [1 1], got %v", numbers)
	}

	var granted bool
	for _, e := range h.sink.OfKind(core.KindLog) {
		if e.Message == "code granted after 1 attempt(s)" {
			granted = true
		}
	}
	if !granted {
		t.Error("expected grant to be reported after 1 attempt")
	}
}

func TestMachine_LoginFailureRetriesAfterCooldown(t *testing.T) {
	api := &fakeAPI{loginErrs: []error{promo.ErrAuth, promo.ErrAuth}}
	h := newHarness(api, 0)
	h.machine.LoginCooldown = 3 * time.Second

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Logins != 3 {
		t.Errorf("expected 3 login calls, got %d", state.Logins)
	}
	if state.Produced != 1 {
		t.Errorf("expected the same unit to complete, produced=%d", state.Produced)
	}

	sleeps := h.clock.Sleeps()
	if len(sleeps) < 2 || sleeps[0] != 3*time.Second || sleeps[1] != 3*time.Second {
		t.Errorf("expected two 3s cooldowns first, got %v", sleeps)
	}

	var warnings int
	for _, e := range h.sink.OfKind(core.KindLog) {
		if e.Severity == core.SeverityWarning {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("expected 2 warnings, got %d", warnings)
	}
}

func TestMachine_DelayNeverBelowMinimum(t *testing.T) {
	api := &fakeAPI{registers: []registerReply{
		{result: promo.Pending}, {result: promo.Pending}, {result: promo.Pending},
		{result: promo.Pending}, {result: promo.Pending}, {result: promo.Pending},
	}}
	h := newHarness(api, 20*time.Second)

	if _, err := h.machine.Run(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, e := range h.sink.OfKind(core.KindAttempt) {
		if e.Delay < 20*time.Second || e.Delay >= 21*time.Second {
			t.Errorf("attempt %d: delay %v outside [20s, 21s)", i+1, e.Delay)
		}
	}
}

func TestMachine_MinimumDelayReadLive(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(api, 0)
	api.registers = []registerReply{{result: promo.Pending}, {result: promo.Granted}}
	api.onRegister = func(n int) {
		if n == 1 {
			h.machine.Policy.SetMinDelay(10 * time.Second)
		}
	}

	if _, err := h.machine.Run(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attempts := h.sink.OfKind(core.KindAttempt)
	if attempts[0].Delay != time.Second {
		t.Errorf("first delay should use the base, got %v", attempts[0].Delay)
	}
	if attempts[1].Delay < 10*time.Second {
		t.Errorf("second delay should honour the raised floor, got %v", attempts[1].Delay)
	}
}

func TestMachine_DuplicateStillCounts(t *testing.T) {
	api := &fakeAPI{codes: []codeReply{{code: "OLD-CODE"}}}
	h := newHarness(api, 0)
	h.store.Insert(context.Background(), "OLD-CODE", "android")

	state, err := h.machine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Produced != 1 || state.Remaining != 0 {
		t.Errorf("a duplicate must complete the unit: %+v", state)
	}

	codeEvents := h.sink.OfKind(core.KindCode)
	if len(codeEvents) != 1 || codeEvents[0].Stored != core.StoreDuplicate {
		t.Fatalf("expected one duplicate code event, got %+v", codeEvents)
	}
	if codeEvents[0].Severity != core.SeverityWarning {
		t.Errorf("duplicates should be logged distinctly, got severity %q", codeEvents[0].Severity)
	}
}

func TestMachine_StoreErrorStillCounts(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(api, 0)
	h.machine.Store = failingStore{err: errStorage}

	state, err := h.machine.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Produced != 2 {
		t.Errorf("expected 2 produced despite storage failures, got %d", state.Produced)
	}
	for _, e := range h.sink.OfKind(core.KindCode) {
		if e.Stored != core.StoreFailed || e.Severity != core.SeverityError {
			t.Errorf("expected store_error outcome, got %+v", e)
		}
	}
	if len(h.sink.OfKind(core.KindWorkerDone)) != 1 {
		t.Error("expected the worker to complete")
	}
}

func TestMachine_RemainingDecreasesOnlyOnStored(t *testing.T) {
	api := &fakeAPI{
		loginErrs: []error{promo.ErrAuth},
		registers: []registerReply{
			{result: promo.Unauthorized},
			{err: promo.ErrTransport},
			{result: promo.RateLimited},
			{result: promo.Granted},
			{result: promo.Pending},
			{result: promo.Granted},
		},
		codes: []codeReply{{code: ""}, {code: "A"}, {err: promo.ErrTransport}, {code: "B"}},
	}
	h := newHarness(api, 0)

	state, err := h.machine.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	codeEvents := h.sink.OfKind(core.KindCode)
	if len(codeEvents) != 2 || state.Produced != 2 {
		t.Errorf("expected exactly 2 stored transitions, got %d events / produced %d", len(codeEvents), state.Produced)
	}
	codes, _ := h.store.List(context.Background())
	if len(codes) != 2 || codes[0].Value != "A" || codes[1].Value != "B" {
		t.Errorf("expected store {A, B}, got %v", codes)
	}
}

func TestMachine_CancellationStopsWithoutCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{registers: repeatReplies(promo.Pending, 100)}
	api.onRegister = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	h := newHarness(api, 0)

	state, err := h.machine.Run(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if state.Produced != 0 || state.Remaining != 1 {
		t.Errorf("cancelled unit must not count: %+v", state)
	}
	if len(h.sink.OfKind(core.KindWorkerDone)) != 0 {
		t.Error("no completion event may be emitted on cancellation")
	}
	if api.count("register") != 5 {
		t.Errorf("expected the loop to stop at the next suspension point, got %d calls", api.count("register"))
	}
}

func TestMachine_EventsCarryWorkerIdentity(t *testing.T) {
	h := newHarness(&fakeAPI{}, 0)

	if _, err := h.machine.Run(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := h.sink.Events()
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	for _, e := range events {
		if e.Worker != "Bike #1" || e.Game != "Bike" || e.WorkerID != 1 {
			t.Errorf("event missing identity: %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("event missing timestamp: %+v", e)
		}
	}

	requests := h.sink.OfKind(core.KindRequest)
	steps := make([]string, 0, len(requests))
	for _, r := range requests {
		steps = append(steps, r.Step)
	}
	if !reflect.DeepEqual(steps, []string{"login", "register_event", "create_code"}) {
		t.Errorf("unexpected request steps %v", steps)
	}
}

func TestMachine_DefaultStoreAndSink(t *testing.T) {
	m := &Machine{
		Game:  testGame,
		API:   &fakeAPI{},
		Clock: core.NewFakeClock(time.Now()),
		Rand:  midRand{},
	}
	state, err := m.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Produced != 1 {
		t.Errorf("expected 1 produced, got %d", state.Produced)
	}
	if _, ok := m.Store.(*keystore.MemoryStore); !ok {
		t.Errorf("expected in-memory default store, got %T", m.Store)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateNeedLogin:   "need_login",
		StateRegistering: "registering",
		StateRedeeming:   "redeeming",
		StateStored:      "stored",
		StateDone:        "done",
		State(42):        "state(42)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

func repeat(r promo.Result, n int) []promo.Result {
	out := make([]promo.Result, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func repeatReplies(r promo.Result, n int) []registerReply {
	out := make([]registerReply, n)
	for i := range out {
		out[i] = registerReply{result: r}
	}
	return out
}
