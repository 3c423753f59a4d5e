package worker

import (
	"context"
	"fmt"
	"time"

	"promokeys/internal/config"
	"promokeys/internal/core"
	"promokeys/internal/keystore"
)

// Workflow builds a fresh Machine for every worker the coordinator starts.
// The fields are shared read-only by all machines.
type Workflow struct {
	Game          config.Game
	API           API
	Store         keystore.Store
	Policy        *core.DelayPolicy
	Clock         core.Clock
	LoginCooldown time.Duration
}

func (w *Workflow) Run(ctx context.Context, workerID int, quantity int, sink core.EventSink) error {
	m := &Machine{
		ID:            workerID,
		Name:          fmt.Sprintf("%s #%d", w.Game.Name, workerID),
		Game:          w.Game,
		API:           w.API,
		Store:         w.Store,
		Sink:          sink,
		Policy:        w.Policy,
		Clock:         w.Clock,
		LoginCooldown: w.LoginCooldown,
	}
	_, err := m.Run(ctx, quantity)
	return err
}
