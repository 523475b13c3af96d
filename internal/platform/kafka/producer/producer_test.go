package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: " , "}, nil)
	require.Error(t, err)
}

func TestHeadersAreSortedByKey(t *testing.T) {
	got := headers(map[string]string{"subject": "clm_1", "action": "claim.issued"})
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "action", Value: []byte("claim.issued")},
		{Key: "subject", Value: []byte("clm_1")},
	}, got)
	assert.Nil(t, headers(nil))
}

func TestSeedBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, seedBrokers("a:9092, b:9092,"))
}

func TestClosedProducerRejectsRecords(t *testing.T) {
	// kgo does not dial until the first request, so no broker is needed.
	p, err := New(Config{Brokers: "127.0.0.1:1"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Produce(context.Background(), &Message{Topic: "t"}), ErrClosed)
	assert.False(t, p.Healthy(context.Background()))
}
