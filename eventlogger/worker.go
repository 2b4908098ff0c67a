package eventlogger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/billbatista/acasinha-trips/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// DroppedMetric counts events that never reached the store, by reason.
const DroppedMetric = "eventlogger.dropped"

const (
	ReasonQueueFull = "queue_full"
	ReasonStopped   = "stopped"
)

// Worker saves events in the background so request handlers never wait on
// the event store.
type Worker struct {
	eventCh chan Event
	logger  EventLogger
	log     *slog.Logger
	dropped metric.Int64Counter
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(logger EventLogger, bufferSize int, log *slog.Logger, meter metric.Meter) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("eventlogger")
	}
	dropped, err := meter.Int64Counter(DroppedMetric,
		metric.WithDescription("Events dropped before they were saved."),
		metric.WithUnit("1"),
	)
	if err != nil {
		log.Error("failed to create counter metric", "metric_name", DroppedMetric, "error", err)
		dropped = noop.Int64Counter{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		log:     log,
		dropped: dropped,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				w.log.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					w.save(context.Background(), <-w.eventCh)
				}
				return
			case event := <-w.eventCh:
				w.save(context.WithoutCancel(w.ctx), event)
			}
		}
	})
}

func (w *Worker) save(ctx context.Context, event Event) {
	if err := w.logger.Save(ctx, event); err != nil {
		w.log.Error("failed to save event", "error", err, "event_type", event.Type, "trip_id", event.TripID)
	}
}

// Log queues the event. Events logged to a full queue or after Shutdown are
// dropped and counted.
func (w *Worker) Log(event Event) {
	if w.ctx.Err() != nil {
		w.drop(ReasonStopped, event)
		return
	}
	select {
	case w.eventCh <- event:
	default:
		w.drop(ReasonQueueFull, event)
	}
}

func (w *Worker) drop(reason string, event Event) {
	w.dropped.Add(context.Background(), 1, metric.WithAttributes(metrics.ReasonKey.String(reason)))
	w.log.Warn("dropping event", "reason", reason, "event_type", event.Type, "trip_id", event.TripID)
}

func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
