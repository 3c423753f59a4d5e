package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"promokeys/internal/config"
	"promokeys/internal/core"
	"promokeys/internal/keystore"
	"promokeys/internal/promo"
)

type registerReply struct {
	result promo.Result
	err    error
}

type codeReply struct {
	code string
	err  error
}

// fakeAPI replays scripted replies. When a script runs out, logins succeed,
// registrations are granted and codes are generated uniquely.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	loginErrs []error
	registers []registerReply
	codes     []codeReply
	tokens    int
	generated int
	// tokens seen by RegisterEvent, in call order
	registerTokens []string
	onRegister     func(n int)
}

func (f *fakeAPI) Login(ctx context.Context, appToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "login")
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.tokens++
	return fmt.Sprintf("token-%d", f.tokens), nil
}

func (f *fakeAPI) RegisterEvent(ctx context.Context, clientToken, promoID string) (promo.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "register")
	f.registerTokens = append(f.registerTokens, clientToken)
	n := len(f.registerTokens)
	reply := registerReply{result: promo.Granted}
	if len(f.registers) > 0 {
		reply = f.registers[0]
		f.registers = f.registers[1:]
	}
	hook := f.onRegister
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return reply.result, reply.err
}

func (f *fakeAPI) CreateCode(ctx context.Context, clientToken, promoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if len(f.codes) > 0 {
		reply := f.codes[0]
		f.codes = f.codes[1:]
		return reply.code, reply.err
	}
	f.generated++
	return fmt.Sprintf("CODE-%04d", f.generated), nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// midRand always picks the middle of the range: zero jitter around the base
// delay and half a second on top of a clamped one.
type midRand struct{}

func (midRand) Int63n(n int64) int64 { return n / 2 }

type failingStore struct {
	keystore.Store
	err error
}

func (f failingStore) Exists(ctx context.Context, code string) (bool, error) {
	return false, f.err
}

func (f failingStore) Insert(ctx context.Context, code, platform string) (keystore.Outcome, error) {
	return keystore.Inserted, f.err
}

var errStorage = errors.New("disk full")

var testGame = config.Game{
	Name:          "Bike",
	AppToken:      "app-token",
	PromoID:       "promo-id",
	Platform:      "android",
	EventsDelayMs: 1000,
}

type harness struct {
	api     *fakeAPI
	store   keystore.Store
	sink    *core.RecordingSink
	clock   *core.FakeClock
	machine *Machine
}

func newHarness(api *fakeAPI, minDelay time.Duration) *harness {
	h := &harness{
		api:   api,
		store: keystore.NewMemoryStore(),
		sink:  &core.RecordingSink{},
		clock: core.NewFakeClock(time.Date(2024, 7, 20, 12, 0, 0, 0, time.UTC)),
	}
	h.machine = &Machine{
		ID:     1,
		Game:   testGame,
		API:    api,
		Store:  h.store,
		Sink:   h.sink,
		Policy: core.NewDelayPolicy(minDelay),
		Clock:  h.clock,
		Rand:   midRand{},
	}
	return h
}
