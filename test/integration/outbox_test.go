//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/test/integration/testutil"
)

type published struct {
	topic string
	key   string
	msg   infra.OutboxMessage
}

type recordingPublisher struct {
	mu     sync.Mutex
	out    []published
	failAt int // fail the nth publish (1-based); 0 never fails
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	var msg infra.OutboxMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	p.out = append(p.out, published{topic: topic, key: string(key), msg: msg})
	return nil
}

func TestOutbox_RelaysStudentEventsInOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, student, reporter := setupExam(t, env, 0)
	at := time.Now().UTC()

	resp := env.Report(reporter, student.ID, "TAB_SWITCH", at)
	resp.Body.Close()
	resp = env.Report(reporter, student.ID, "MOBILE_PHONE_DETECTED", at)
	resp.Body.Close()

	pub := &recordingPublisher{}
	cfg := &infra.Config{KafkaTopicPrefix: "smartproctor", OutboxBatchSize: 100}
	poller := infra.NewOutboxPoller(env.Store, pub, guard.NewCircuitBreaker(5, time.Second), cfg, env.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := poller.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, len(pub.out), n)

	var studentEvents []string
	for _, p := range pub.out {
		if p.key == student.ID.String() {
			studentEvents = append(studentEvents, p.msg.EventType)
		}
	}
	assert.Equal(t, []string{
		string(domain.EventStudentJoined),
		string(domain.EventStudentStarted),
		string(domain.EventIncidentRecorded),
		string(domain.EventIncidentRecorded),
	}, studentEvents)
	assert.Contains(t, topicsOf(pub.out), "smartproctor.incident.recorded")

	// Relayed rows are removed.
	n, err = poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testutil.CountOutbox(t, env, string(domain.EventIncidentRecorded)))
}

func TestOutbox_FailedPublishKeepsRemainder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, student, reporter := setupExam(t, env, 0)

	resp := env.Report(reporter, student.ID, "TAB_SWITCH", time.Now().UTC())
	resp.Body.Close()

	var pending int
	require.NoError(t, env.Pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM event_outbox").Scan(&pending))
	require.Greater(t, pending, 1)

	pub := &recordingPublisher{failAt: 2}
	cfg := &infra.Config{KafkaTopicPrefix: "smartproctor"}
	poller := infra.NewOutboxPoller(env.Store, pub, guard.NewCircuitBreaker(5, time.Second), cfg, env.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := poller.PollOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	// The failed event and everything after it are retried next poll.
	n, err = poller.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending-1, n)
}

func topicsOf(out []published) []string {
	topics := make([]string, 0, len(out))
	for _, p := range out {
		topics = append(topics, p.topic)
	}
	return topics
}
