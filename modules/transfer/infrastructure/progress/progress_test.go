package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

type fakeRedis struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisherPublishesJSONInOrder(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewRedisPublisher(rdb, PublisherOptions{Channel: "progress"})
	sink := p.Sink()
	sink(domain.Progress{RunID: "r1", Phase: domain.PhaseCreate, EntityType: schema.Capability, Processed: 5, Total: 10, Percent: 35})
	sink(domain.Progress{RunID: "r1", Phase: domain.PhaseDone, Percent: 100})
	p.Close()

	require.Equal(t, []string{"progress", "progress"}, rdb.channels)
	var first domain.Progress
	require.NoError(t, json.Unmarshal(rdb.messages[0], &first))
	require.Equal(t, schema.Capability, first.EntityType)
	require.InDelta(t, 35.0, first.Percent, 0.001)

	// events after Close are ignored
	sink(domain.Progress{RunID: "r1"})
	require.Len(t, rdb.messages, 2)
}

func TestRedisPublisherSurvivesPublishErrors(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	p := NewRedisPublisher(rdb, PublisherOptions{})
	p.Sink()(domain.Progress{RunID: "r2"})
	p.Close()
	require.Len(t, rdb.messages, 1)
	require.Equal(t, "eam:transfer:progress", rdb.channels[0])
}

func TestLogSinkAndTee(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	var seen []domain.Phase
	sink := Tee(LogSink(logrus.NewEntry(l)), nil, func(p domain.Progress) { seen = append(seen, p.Phase) })
	sink(domain.Progress{Phase: domain.PhaseCreate})
	sink(domain.Progress{Phase: domain.PhaseCreate, Processed: 5})
	sink(domain.Progress{Phase: domain.PhaseRelationships})

	require.Equal(t, []domain.Phase{domain.PhaseCreate, domain.PhaseCreate, domain.PhaseRelationships}, seen)
	require.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("import phase")))
	require.NotContains(t, buf.String(), "import progress")
}

func TestLogSinkTracksPhasesPerRun(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)
	sink := LogSink(logrus.NewEntry(l))

	phases := []domain.Phase{domain.PhaseCreate, domain.PhaseCreate, domain.PhaseRelationships, domain.PhaseRelationships, domain.PhaseDone}
	var wg sync.WaitGroup
	for _, run := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(run string) {
			defer wg.Done()
			for _, ph := range phases {
				sink(domain.Progress{RunID: run, Phase: ph})
			}
		}(run)
	}
	wg.Wait()

	// create, relationships and done for each run
	require.Equal(t, 6, bytes.Count(buf.Bytes(), []byte("import phase")))
}
