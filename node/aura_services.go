package node

import (
	"context"
	"net/http"
	"time"

	"github.com/aura-chain/aura-engine/internal/authorship"
	"github.com/aura-chain/aura-engine/internal/importqueue"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/metrics"
)

// importQueueService adapts importqueue.Queue into a Service so it can be
// managed by a ServiceRegistry alongside the other engine components.
type importQueueService struct {
	queue  *importqueue.Queue
	cancel context.CancelFunc
}

func (s *importQueueService) Name() string { return "importqueue" }

func (s *importQueueService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.queue.Start(ctx)
	return nil
}

func (s *importQueueService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
	return nil
}

// authorshipService drives the authorship worker one slot at a time as the
// node's scheduler thread.
type authorshipService struct {
	worker    *authorship.Worker
	clock     *slotclock.SlotClock
	chainHead ChainHeadProvider
	log       *log.Logger
	bus       *EventBus

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *authorshipService) Name() string { return "authorship" }

func (s *authorshipService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.worker.OnStart(s.clock.Duration())
	go s.run(ctx)
	return nil
}

func (s *authorshipService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}

// run is the scheduler loop: one iteration per slot boundary, driving the
// authorship worker's OnSlot.
func (s *authorshipService) run(ctx context.Context) {
	defer close(s.done)

	lastSlot := s.clock.CurrentSlot(time.Now())
	for {
		nextSlot := lastSlot + 1
		wait := time.Until(s.clock.SlotStartTime(nextSlot))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		slot := s.clock.CurrentSlot(time.Now())
		lastSlot = slot
		head, err := s.chainHead.ChainHead()
		if err != nil {
			s.log.Warn("failed to fetch chain head, skipping slot", "slot", uint64(slot), "err", err)
			s.bus.PublishAsync(EventSlotSkipped, slot)
			continue
		}
		info := s.clock.SlotInfoFor(slot)
		s.worker.OnSlot(ctx, head, info)
	}
}

// metricsService serves the Prometheus exporter's HTTP endpoint.
type metricsService struct {
	exporter *metrics.PrometheusExporter
	addr     string
	srv      *http.Server
}

func (s *metricsService) Name() string { return "metrics" }

func (s *metricsService) Start() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.exporter.Handler()}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

func (s *metricsService) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
