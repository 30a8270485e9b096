package feed

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestRandomGenerator_Payloads(t *testing.T) {
	gen := NewRandomGenerator(42)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	seen := make(map[string]int)
	txnIDs := make(map[string]bool)

	for i := 0; i < 500; i++ {
		msg := gen.Next(now)
		seen[msg.Kind]++

		if msg.Source != SourceSynthetic {
			t.Fatalf("Source = %q, want synthetic", msg.Source)
		}
		if !msg.ReceivedAt.Equal(now) {
			t.Fatalf("ReceivedAt = %v, want %v", msg.ReceivedAt, now)
		}
		if msg.SentAt != nil {
			t.Fatal("synthetic message should have no SentAt")
		}

		switch msg.Kind {
		case KindHeartbeat:
			var hb HeartbeatPayload
			mustUnmarshal(t, msg.Payload, &hb)
			if hb.Status != "alive" {
				t.Errorf("heartbeat status = %q, want alive", hb.Status)
			}

		case KindTransactionUpdate:
			var tx TransactionUpdate
			mustUnmarshal(t, msg.Payload, &tx)
			if tx.Amount < 10 || tx.Amount > 59 {
				t.Errorf("amount = %d, want [10, 59]", tx.Amount)
			}
			if !slices.Contains(DemoStations, tx.StationID) {
				t.Errorf("stationId = %q, not a demo station", tx.StationID)
			}
			if !strings.HasPrefix(tx.ID, "demo_txn_") {
				t.Errorf("id = %q, want demo_txn_ prefix", tx.ID)
			}
			if txnIDs[tx.ID] {
				t.Errorf("duplicate transaction id %q", tx.ID)
			}
			txnIDs[tx.ID] = true

		case KindStationStatus:
			var st StationStatus
			mustUnmarshal(t, msg.Payload, &st)
			if !slices.Contains(DemoStations, st.StationID) {
				t.Errorf("stationId = %q, not a demo station", st.StationID)
			}
			if !slices.Contains(DemoStationStatuses, st.Status) {
				t.Errorf("status = %q, not a demo status", st.Status)
			}
			if len(st.Connectors) != 2 {
				t.Fatalf("connectors = %d, want 2", len(st.Connectors))
			}
			if st.Connectors[0].Status != "Available" {
				t.Errorf("connector 1 status = %q, want Available", st.Connectors[0].Status)
			}
			if s := st.Connectors[1].Status; s != "Available" && s != "Occupied" {
				t.Errorf("connector 2 status = %q", s)
			}

		default:
			t.Fatalf("unexpected kind %q", msg.Kind)
		}
	}

	for _, kind := range DemoKinds {
		if seen[kind] == 0 {
			t.Errorf("kind %q never generated", kind)
		}
	}
}

func TestRandomGenerator_SeedIsReproducible(t *testing.T) {
	a := NewRandomGenerator(7)
	b := NewRandomGenerator(7)
	now := time.Now()

	for i := 0; i < 20; i++ {
		ma, mb := a.Next(now), b.Next(now)
		if ma.Kind != mb.Kind {
			t.Fatalf("message %d: kinds differ: %q vs %q", i, ma.Kind, mb.Kind)
		}
	}
}

func TestScriptedGenerator_Cycles(t *testing.T) {
	gen := NewScriptedGenerator(KindTransactionUpdate, KindHeartbeat)
	now := time.Now()

	want := []string{
		KindTransactionUpdate, KindHeartbeat,
		KindTransactionUpdate, KindHeartbeat,
		KindTransactionUpdate,
	}
	for i, kind := range want {
		if got := gen.Next(now).Kind; got != kind {
			t.Errorf("message %d: kind = %q, want %q", i, got, kind)
		}
	}
}

func TestScriptedGenerator_EmptyUsesDemoKinds(t *testing.T) {
	gen := NewScriptedGenerator()
	now := time.Now()

	for i, kind := range DemoKinds {
		if got := gen.Next(now).Kind; got != kind {
			t.Errorf("message %d: kind = %q, want %q", i, got, kind)
		}
	}
}

func TestDemoNotice(t *testing.T) {
	msg := demoNotice(ReasonConnectTimeout, time.Now())

	if msg.Kind != KindSystem {
		t.Errorf("Kind = %q, want %q", msg.Kind, KindSystem)
	}
	var notice SystemNotice
	mustUnmarshal(t, msg.Payload, &notice)
	if !strings.Contains(notice.Message, "demo mode") {
		t.Errorf("Message = %q, want demo mode notice", notice.Message)
	}
	if notice.Reason != ReasonConnectTimeout {
		t.Errorf("Reason = %q, want %q", notice.Reason, ReasonConnectTimeout)
	}
}

func mustUnmarshal(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}
