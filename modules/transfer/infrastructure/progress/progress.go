// Package progress fans import progress out to logs and to a Redis channel
// the UI subscribes to.
package progress

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
)

// LogSink logs every progress event at Debug and phase boundaries at Info.
// Phases are tracked per run, so one sink can serve concurrent imports.
func LogSink(log *logrus.Entry) domain.ProgressFunc {
	var (
		mu   sync.Mutex
		last = map[string]domain.Phase{}
	)
	changed := func(p domain.Progress) bool {
		mu.Lock()
		defer mu.Unlock()
		if p.Phase == domain.PhaseDone {
			delete(last, p.RunID)
			return true
		}
		if last[p.RunID] == p.Phase {
			return false
		}
		last[p.RunID] = p.Phase
		return true
	}
	return func(p domain.Progress) {
		entry := log.WithFields(logrus.Fields{
			"run_id":      p.RunID,
			"phase":       p.Phase,
			"entity_type": p.EntityType,
			"processed":   p.Processed,
			"total":       p.Total,
			"percent":     p.Percent,
		})
		if changed(p) {
			entry.Info("import phase")
			return
		}
		entry.Debug("import progress")
	}
}

// Tee calls every non-nil sink in order.
func Tee(sinks ...domain.ProgressFunc) domain.ProgressFunc {
	live := make([]domain.ProgressFunc, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(p domain.Progress) {
		for _, s := range live {
			s(p)
		}
	}
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type PublisherOptions struct {
	Channel        string
	Buffer         int
	PublishTimeout time.Duration
	Logger         *logrus.Entry
}

func (o *PublisherOptions) setDefaults() {
	if o.Channel == "" {
		o.Channel = "eam:transfer:progress"
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}

// RedisPublisher publishes progress events as JSON. Events are queued; when
// the queue is full the event is dropped so the import never waits on Redis.
type RedisPublisher struct {
	client publisher
	opts   PublisherOptions
	queue  chan domain.Progress

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	dropped int
}

func NewRedisPublisher(client publisher, opts PublisherOptions) *RedisPublisher {
	opts.setDefaults()
	p := &RedisPublisher{
		client: client,
		opts:   opts,
		queue:  make(chan domain.Progress, opts.Buffer),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *RedisPublisher) loop() {
	defer close(p.done)
	for ev := range p.queue {
		b, err := json.Marshal(ev)
		if err != nil {
			p.opts.Logger.WithError(err).Warn("encode progress")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.PublishTimeout)
		err = p.client.Publish(ctx, p.opts.Channel, b).Err()
		cancel()
		if err != nil {
			p.opts.Logger.WithError(err).WithField("channel", p.opts.Channel).Warn("publish progress")
		}
	}
}

// Sink is the ProgressFunc to hand to the importer.
func (p *RedisPublisher) Sink() domain.ProgressFunc {
	return func(ev domain.Progress) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return
		}
		select {
		case p.queue <- ev:
		default:
			p.dropped++
		}
	}
}

// Close flushes queued events and stops the publisher.
func (p *RedisPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

// Dropped reports how many events were discarded because the queue was full.
func (p *RedisPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
