package heartbeat

import (
	"context"
	"time"

	"analogkb-go/bus"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("system", "heartbeat")
)

// Stats reports completed scan rounds and skipped (overrun) ticks.
type Stats func() (rounds, overruns uint32)

type Service struct {
	stats Stats
}

func New(stats Stats) *Service { return &Service{stats: stats} }

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			var rounds, overruns uint32
			if s.stats != nil {
				rounds, overruns = s.stats()
			}
			uptime := int64(time.Since(started) / time.Second)
			println("Info: heartbeat uptime_s:", uptime, "rounds:", rounds, "overruns:", overruns)
			conn.Publish(conn.NewMessage(topicHeartbeat, map[string]any{
				"uptime_s": uptime,
				"rounds":   rounds,
				"overruns": overruns,
			}, true))
		case msg := <-cfgSub.Channel():
			// Change tick interval if configured.
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if interval, ok := iv.(float64); ok && interval > 0 {
						tick.Reset(time.Duration(interval * float64(time.Second)))
						println("Info: heartbeat interval set to", interval, "seconds")
					}
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
