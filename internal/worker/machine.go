// Package worker drives one promo session through login, event registration,
// redemption and storage until the requested number of codes is produced.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"promokeys/internal/config"
	"promokeys/internal/core"
	"promokeys/internal/keystore"
	"promokeys/internal/promo"
)

// API is the remote service as seen by a worker. *promo.Client implements it.
type API interface {
	Login(ctx context.Context, appToken string) (string, error)
	RegisterEvent(ctx context.Context, clientToken, promoID string) (promo.Result, error)
	CreateCode(ctx context.Context, clientToken, promoID string) (string, error)
}

// State is the position of a machine inside one unit of work.
type State int

const (
	StateNeedLogin State = iota
	StateRegistering
	StateRedeeming
	StateStored
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNeedLogin:
		return "need_login"
	case StateRegistering:
		return "registering"
	case StateRedeeming:
		return "redeeming"
	case StateStored:
		return "stored"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunState is mutated only by the owning machine.
type RunState struct {
	State              State
	Remaining          int
	Produced           int
	SurplusDelay       time.Duration // backoff feedback: +2s per rate limit, -1s per 3 pending in a row
	ConsecutivePending int
	Attempts           int // classified register-event responses, all units
	Logins             int // login calls, all units
}

type session struct {
	clientToken string
	promoID     string
}

// Machine is a single worker. It is not safe for concurrent use; the
// coordinator gives every goroutine its own Machine.
type Machine struct {
	ID            int
	Name          string
	Game          config.Game
	API           API
	Store         keystore.Store
	Sink          core.EventSink
	Policy        *core.DelayPolicy
	Clock         core.Clock
	Rand          Rand
	LoginCooldown time.Duration

	state   RunState
	session *session
}

// State returns a snapshot of the run state.
func (m *Machine) State() RunState {
	return m.state
}

func (m *Machine) setDefaults() {
	if m.Name == "" {
		m.Name = fmt.Sprintf("%s #%d", m.Game.Name, m.ID)
	}
	if m.Sink == nil {
		m.Sink = core.NullSink
	}
	if m.Clock == nil {
		m.Clock = core.RealClock{}
	}
	if m.Rand == nil {
		m.Rand = rand.New(rand.NewSource(time.Now().UnixNano() + int64(m.ID)))
	}
	if m.LoginCooldown == 0 {
		m.LoginCooldown = DefaultLoginCooldown
	}
	if m.Store == nil {
		m.Store = keystore.NewMemoryStore()
	}
}

// Run produces quantity codes. Every failure is retried; Run only returns an
// error when ctx is cancelled, in which case no completion event is emitted.
func (m *Machine) Run(ctx context.Context, quantity int) (RunState, error) {
	m.setDefaults()
	ctx = core.ContextWithWorker(ctx, m.Name)
	m.state = RunState{Remaining: quantity}
	m.logf(core.SeverityInfo, "starting, %d key(s) requested", quantity)

	for m.state.Remaining > 0 {
		code, err := m.obtainCode(ctx)
		if err != nil {
			return m.state, err
		}
		if code == "" {
			continue
		}
		m.storeCode(ctx, code)
	}

	m.state.State = StateDone
	m.emit(core.Event{
		Kind:     core.KindWorkerDone,
		Severity: core.SeveritySuccess,
		Success:  true,
		Message:  fmt.Sprintf("produced all %d requested key(s)", quantity),
	})
	return m.state, nil
}

// obtainCode runs one unit from NeedLogin through Redeeming. An empty code
// with a nil error means the unit must restart from NeedLogin.
func (m *Machine) obtainCode(ctx context.Context) (string, error) {
	if err := m.login(ctx); err != nil {
		return "", err
	}

	granted, err := m.register(ctx)
	if err != nil {
		return "", err
	}
	if !granted {
		m.session = nil
		return "", nil
	}

	m.state.State = StateRedeeming
	start := m.Clock.Now()
	code, err := m.API.CreateCode(ctx, m.session.clientToken, m.session.promoID)
	if err != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	outcome := "redeemed"
	switch {
	case err != nil:
		outcome = "transport_error"
	case code == "":
		outcome = "withheld"
	}
	m.request("create_code", start, outcome == "redeemed", outcome)

	switch {
	case err != nil:
		m.logf(core.SeverityWarning, "redemption failed, starting over: %v", err)
		m.session = nil
		return "", nil
	case code == "":
		m.logf(core.SeverityWarning, "server withheld the code, starting over")
		m.session = nil
		return "", nil
	}
	return code, nil
}

// login retries with a fixed cooldown until it gets a client token.
func (m *Machine) login(ctx context.Context) error {
	m.state.State = StateNeedLogin
	m.session = nil
	for {
		start := m.Clock.Now()
		token, err := m.API.Login(ctx, m.Game.AppToken)
		m.state.Logins++
		if err == nil {
			m.request("login", start, true, "ok")
			m.session = &session{clientToken: token, promoID: m.Game.PromoID}
			m.logf(core.SeverityInfo, "logged in")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.request("login", start, false, "auth_error")
		m.logf(core.SeverityWarning, "login failed, retrying in %v: %v", m.LoginCooldown, err)
		if err := m.Clock.Sleep(ctx, m.LoginCooldown); err != nil {
			return err
		}
	}
}

// register loops until the server grants a code (true) or rejects the
// session (false).
func (m *Machine) register(ctx context.Context) (bool, error) {
	m.state.State = StateRegistering
	base := m.Game.EventsDelay()

	attempt := 1
	for {
		delay := NextDelay(base, m.state.SurplusDelay, m.Policy.MinDelay(), m.Rand)
		m.emit(core.Event{
			Kind:     core.KindAttempt,
			Severity: core.SeverityInfo,
			Attempt:  attempt,
			Delay:    delay,
			Message:  fmt.Sprintf("attempt %d in %v", attempt, delay.Round(time.Millisecond)),
		})
		if err := m.Clock.Sleep(ctx, delay); err != nil {
			return false, err
		}

		start := m.Clock.Now()
		result, err := m.API.RegisterEvent(ctx, m.session.clientToken, m.session.promoID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			// no response to classify: retry under the same attempt number
			m.request("register_event", start, false, "transport_error")
			m.logf(core.SeverityWarning, "register event failed: %v", err)
			continue
		}
		m.state.Attempts++
		m.request("register_event", start, result == promo.Granted || result == promo.Pending, result.String())

		switch result {
		case promo.Granted:
			m.logf(core.SeveritySuccess, "code granted after %d attempt(s)", attempt)
			return true, nil
		case promo.Pending:
			m.state.ConsecutivePending++
			if m.state.ConsecutivePending >= pendingStreak {
				m.state.SurplusDelay -= pendingReward
				m.state.ConsecutivePending = 0
				m.logf(core.SeverityInfo, "speeding up, surplus delay now %v", m.state.SurplusDelay)
			}
		case promo.RateLimited:
			m.state.ConsecutivePending = 0
			m.state.SurplusDelay += rateLimitPenalty
			m.logf(core.SeverityWarning, "rate limited, surplus delay now %v", m.state.SurplusDelay)
		case promo.Unauthorized:
			m.state.ConsecutivePending = 0
			m.logf(core.SeverityWarning, "session rejected, logging in again")
			return false, nil
		default:
			m.logf(core.SeverityWarning, "unexpected register event response, retrying")
		}
		attempt++
	}
}

// storeCode records code in the dedup store. The unit counts as produced
// whatever the store says: the code was obtained even if it was not saved.
func (m *Machine) storeCode(ctx context.Context, code string) {
	m.state.State = StateStored
	m.session = nil

	outcome := core.StoreInserted
	var storeErr error
	exists, err := m.Store.Exists(ctx, code)
	switch {
	case err != nil:
		outcome, storeErr = core.StoreFailed, err
	case exists:
		outcome = core.StoreDuplicate
	default:
		o, err := m.Store.Insert(ctx, code, m.Game.Platform)
		switch {
		case err != nil:
			outcome, storeErr = core.StoreFailed, err
		case o == keystore.Duplicate:
			outcome = core.StoreDuplicate
		}
	}

	m.state.Remaining--
	m.state.Produced++

	e := core.Event{
		Kind:     core.KindCode,
		Code:     code,
		Platform: m.Game.Platform,
		Stored:   outcome,
		Success:  true,
	}
	switch outcome {
	case core.StoreInserted:
		e.Severity = core.SeveritySuccess
		e.Message = fmt.Sprintf("generated %s", code)
	case core.StoreDuplicate:
		e.Severity = core.SeverityWarning
		e.Message = fmt.Sprintf("generated %s, already in the store", code)
	case core.StoreFailed:
		e.Severity = core.SeverityError
		e.Message = fmt.Sprintf("generated %s, could not save it: %v", code, storeErr)
	}
	m.emit(e)
}

func (m *Machine) request(step string, start time.Time, success bool, outcome string) {
	m.emit(core.Event{
		Kind:     core.KindRequest,
		Step:     step,
		Duration: m.Clock.Since(start),
		Success:  success,
		Outcome:  outcome,
	})
}

func (m *Machine) logf(sev core.Severity, format string, args ...any) {
	m.emit(core.Event{
		Kind:     core.KindLog,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (m *Machine) emit(e core.Event) {
	e.WorkerID = m.ID
	e.Worker = m.Name
	e.Game = m.Game.Name
	e.Timestamp = m.Clock.Now()
	m.Sink.Report(e)
}
