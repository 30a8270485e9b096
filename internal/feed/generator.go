package feed

import (
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces synthetic messages while the manager runs in demo mode.
type Generator interface {
	Next(now time.Time) Message
}

// Demo data pools.
var (
	DemoKinds           = []string{KindHeartbeat, KindTransactionUpdate, KindStationStatus}
	DemoStations        = []string{"CP001", "CP002", "CP003"}
	DemoStationStatuses = []string{"Available", "Occupied", "Unavailable"}
)

const (
	demoAmountMin   = 10
	demoAmountRange = 50 // amounts fall in [10, 59]
	demoTxnPrefix   = "demo_txn_"
)

// HeartbeatPayload is the data of a heartbeat message.
type HeartbeatPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TransactionUpdate is the data of a transaction_update message.
type TransactionUpdate struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int    `json:"amount"`
	StationID string `json:"stationId"`
}

// Connector is one charge point connector in a station_status message.
type Connector struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// StationStatus is the data of a station_status message.
type StationStatus struct {
	StationID  string      `json:"stationId"`
	Status     string      `json:"status"`
	Connectors []Connector `json:"connectors"`
}

// SystemNotice is the data of the system message pushed when demo mode starts.
type SystemNotice struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// RandomGenerator picks a kind uniformly from DemoKinds and fills the payload
// with random values from the demo pools.
type RandomGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	newID func() string
}

// NewRandomGenerator creates a generator. The same seed yields the same
// kinds and values; transaction ids are always unique.
func NewRandomGenerator(seed uint64) *RandomGenerator {
	return &RandomGenerator{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		newID: func() string { return demoTxnPrefix + uuid.NewString() },
	}
}

// Next returns the next synthetic message.
func (g *RandomGenerator) Next(now time.Time) Message {
	g.mu.Lock()
	kind := DemoKinds[g.rng.IntN(len(DemoKinds))]
	g.mu.Unlock()
	return g.build(kind, now)
}

func (g *RandomGenerator) build(kind string, now time.Time) Message {
	g.mu.Lock()
	defer g.mu.Unlock()

	var data any
	switch kind {
	case KindHeartbeat:
		data = HeartbeatPayload{Status: "alive", Timestamp: now.UTC().Format(time.RFC3339Nano)}
	case KindTransactionUpdate:
		data = TransactionUpdate{
			ID:        g.newID(),
			Status:    "completed",
			Amount:    demoAmountMin + g.rng.IntN(demoAmountRange),
			StationID: DemoStations[g.rng.IntN(len(DemoStations))],
		}
	case KindStationStatus:
		second := "Available"
		if g.rng.Float64() > 0.5 {
			second = "Occupied"
		}
		data = StationStatus{
			StationID: DemoStations[g.rng.IntN(len(DemoStations))],
			Status:    DemoStationStatuses[g.rng.IntN(len(DemoStationStatuses))],
			Connectors: []Connector{
				{ID: 1, Status: "Available"},
				{ID: 2, Status: second},
			},
		}
	}

	return syntheticMessage(kind, data, now)
}

// ScriptedGenerator cycles through a fixed list of kinds. Payload values
// come from a fixed-seed RandomGenerator, so output is reproducible.
type ScriptedGenerator struct {
	mu    sync.Mutex
	kinds []string
	next  int
	gen   *RandomGenerator
}

// NewScriptedGenerator creates a generator emitting kinds in order, then
// starting over. An empty list falls back to DemoKinds.
func NewScriptedGenerator(kinds ...string) *ScriptedGenerator {
	if len(kinds) == 0 {
		kinds = DemoKinds
	}
	return &ScriptedGenerator{
		kinds: append([]string(nil), kinds...),
		gen:   NewRandomGenerator(1),
	}
}

// Next returns the next scripted message.
func (g *ScriptedGenerator) Next(now time.Time) Message {
	g.mu.Lock()
	kind := g.kinds[g.next%len(g.kinds)]
	g.next++
	g.mu.Unlock()
	return g.gen.build(kind, now)
}

// demoNotice builds the system message announcing demo mode.
func demoNotice(reason string, now time.Time) Message {
	return syntheticMessage(KindSystem, SystemNotice{
		Message: "demo mode activated - live feed unavailable",
		Reason:  reason,
	}, now)
}

func syntheticMessage(kind string, data any, now time.Time) Message {
	msg := Message{
		Kind:       kind,
		ReceivedAt: now,
		Source:     SourceSynthetic,
	}
	if data != nil {
		// Payload types above always marshal.
		msg.Payload, _ = json.Marshal(data)
	}
	return msg
}
