package changeevents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"

	"github.com/mohammed-shakir/cartodb-adapter/internal/core/model"
	"github.com/mohammed-shakir/cartodb-adapter/internal/logger"
)

func decodeInto(out *Event) mocks.ValueChecker {
	return func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return nil
	}
}

func TestRecordChanged_PointCarriesCell(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	var got Event
	mp.ExpectInputWithCheckerFunctionAndSucceed(decodeInto(&got))

	p := NewWithProducer(mp, "record-changes", 4, 9, nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	ctx := logger.WithRequestID(context.Background(), "req-1")
	p.RecordChanged(ctx, "create", "playgrounds", model.Record{ID: 3, Geometry: model.NewPoint(18.0686, 59.3293)})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want, err := Cell(18.0686, 59.3293, 9)
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	if got.Op != "create" || got.Table != "playgrounds" || got.ID != 3 || got.RequestID != "req-1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Point == nil || got.Point.Lon != 18.0686 || got.Point.Lat != 59.3293 {
		t.Fatalf("point=%+v", got.Point)
	}
	if got.Cell != want || len(want) != 15 {
		t.Fatalf("cell=%q want %q", got.Cell, want)
	}
}

func TestRecordChanged_NoGeometry(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	var got Event
	mp.ExpectInputWithCheckerFunctionAndSucceed(decodeInto(&got))

	p := NewWithProducer(mp, "record-changes", 4, 9, nil)
	p.RecordChanged(context.Background(), "delete", "playgrounds", model.Record{ID: 8})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got.ID != 8 || got.Point != nil || got.Cell != "" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestPublish_AfterCloseIsDropped(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, ProducerConfig())
	p := NewWithProducer(mp, "record-changes", 1, 9, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.Publish(Event{Op: "create"})
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCell_InvalidResolution(t *testing.T) {
	if _, err := Cell(0, 0, 99); err == nil {
		t.Fatalf("expected error for resolution 99")
	}
}
