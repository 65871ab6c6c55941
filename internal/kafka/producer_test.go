package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"plasmatrader/internal/core"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignal() core.PredictionSignal {
	return core.PredictionSignal{
		Timestamp:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol:             "BTCUSDT",
		FusedPredictionPct: -0.2,
		Confidence:         0.75,
		Decision:           core.DecisionShortEntry,
		Details:            map[string]float64{"5m": -0.2},
	}
}

func TestNewDecisionEvent(t *testing.T) {
	ev := NewDecisionEvent(testSignal())
	assert.Equal(t, EventTypeDecision, ev.EventType)
	assert.Equal(t, Source, ev.Source)
	assert.Equal(t, SignalSell, ev.Data.Signal)
	assert.Equal(t, -0.2, ev.Data.Timeframes["5m"])

	sig := testSignal()
	sig.Decision = core.DecisionLongEntry
	assert.Equal(t, SignalBuy, NewDecisionEvent(sig).Data.Signal)
	sig.Decision = core.DecisionWaiting
	assert.Equal(t, SignalWatch, NewDecisionEvent(sig).Data.Signal)
}

func TestPublisher_PublishSignal(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev DecisionEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Data.Symbol != "BTCUSDT" || ev.Data.Decision != core.DecisionShortEntry {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, "trading.decisions", nil)
	require.NoError(t, p.PublishSignal(context.Background(), testSignal()))
	require.NoError(t, p.Close())
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, "trading.decisions", nil)
	err := p.PublishSignal(context.Background(), testSignal())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewPublisherWithProducer(producer, "trading.decisions", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishSignal(ctx, testSignal()), context.Canceled)
	require.NoError(t, p.Close())
}
