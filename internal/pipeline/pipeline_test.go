package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/onchain-ingest/internal/dune"
	"github.com/web3-frozen/onchain-ingest/internal/normalize"
	"github.com/web3-frozen/onchain-ingest/internal/reserve"
	"github.com/web3-frozen/onchain-ingest/internal/runlog"
	"github.com/web3-frozen/onchain-ingest/internal/store"
)

var runAt = time.Date(2024, 1, 2, 3, 4, 5, 678_000_000, time.UTC)

// engineServer fakes the query API: every execution completes on the
// second status fetch with the configured rows.
type engineServer struct {
	mu      sync.Mutex
	rows    string
	params  map[string]any
	queryID string
	fetches int
}

func (e *engineServer) start(t *testing.T) *dune.Client {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/query/{queryID}/execute", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.queryID = chi.URLParam(r, "queryID")
		var body struct {
			Params map[string]any `json:"query_parameters"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		e.params = body.Params
		_, _ = w.Write([]byte(`{"execution_id":"exec-1","state":"QUERY_STATE_PENDING"}`))
	})
	r.Get("/execution/{executionID}/results", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.fetches++
		if e.fetches < 2 {
			_, _ = w.Write([]byte(`{"state":"QUERY_STATE_EXECUTING"}`))
			return
		}
		_, _ = w.Write([]byte(`{"state":"QUERY_STATE_COMPLETED","result":{"rows":` + e.rows + `}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return dune.NewClient(dune.Config{APIKey: "k", BaseURL: srv.URL}, slog.Default())
}

var fastPoll = dune.PollOptions{MaxAttempts: 5, Interval: time.Millisecond}

type fakeLedger struct {
	tvl float64
	err error
}

func (f fakeLedger) TBillTVL(context.Context) (float64, error) { return f.tvl, f.err }

type fakeRecorder struct {
	entries []runlog.Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, e runlog.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func memoryRunner(m *store.Memory, rec Recorder) (*Runner, *int) {
	opened := 0
	return &Runner{
		Open: func(context.Context) (Sink, error) {
			opened++
			return m, nil
		},
		Recorder: rec,
		Logger:   slog.Default(),
		Now:      func() time.Time { return runAt },
	}, &opened
}

func TestMintRedeemEndToEnd(t *testing.T) {
	e := &engineServer{rows: `[{"chain":"ethereum","day":"2024-01-01","minted":100,"redeemed":40,"net":60}]`}
	engine := e.start(t)
	m := store.NewMemory()
	rec := &fakeRecorder{}
	r, _ := memoryRunner(m, rec)

	res, err := r.Run(context.Background(), &MintRedeem{Engine: engine, Poll: fastPoll})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Written != 1 {
		t.Errorf("Written = %d, want 1", res.Written)
	}

	if e.queryID != "6517050" {
		t.Errorf("query id = %s, want 6517050", e.queryID)
	}
	if e.params["start_date"] != "2024-01-01T03:04:05Z" || e.params["end_date"] != "2024-01-02T03:04:05Z" {
		t.Errorf("params = %v, want a 24h window ending 2024-01-02T03:04:05Z", e.params)
	}

	docs := m.Docs(store.MintRedeem)
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	want := `{"network":"ethereum","date":"2024-01-01","minted":100,"redeemed":40,"net":60}`
	if string(docs[0]) != want {
		t.Errorf("doc = %s, want %s", docs[0], want)
	}

	if len(rec.entries) != 1 || rec.entries[0].Status != runlog.StatusSuccess || rec.entries[0].Records != 1 {
		t.Errorf("recorded = %+v, want one success with 1 record", rec.entries)
	}
}

func TestTVLAppendsLedgerRecord(t *testing.T) {
	e := &engineServer{rows: `[{"chain":"ethereum","query_timestamp":"2024-01-02 00:00:00.000","tvl":500}]`}
	engine := e.start(t)
	m := store.NewMemory()
	r, _ := memoryRunner(m, nil)

	if _, err := r.Run(context.Background(), &TVL{Engine: engine, Ledger: fakeLedger{tvl: 42}, Poll: fastPoll}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if e.params["timestamp"] != "2024-01-02T03:04:05Z" {
		t.Errorf("timestamp param = %v", e.params["timestamp"])
	}

	docs := m.Docs(store.TVL)
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	var last normalize.TVL
	if err := json.Unmarshal(docs[1], &last); err != nil {
		t.Fatal(err)
	}
	if last.Network != "xrpl" || last.TVL != 42 || !last.Datetime.Equal(runAt.Truncate(time.Second)) {
		t.Errorf("ledger doc = %+v", last)
	}
}

// orderedLedger notes how far the query had progressed when the ledger
// balance was read.
type orderedLedger struct {
	engine          *engineServer
	submittedBefore bool
	calls           int
}

func (o *orderedLedger) TBillTVL(context.Context) (float64, error) {
	o.engine.mu.Lock()
	defer o.engine.mu.Unlock()
	o.calls++
	o.submittedBefore = o.engine.queryID != ""
	return 7, nil
}

func TestTVLReadsLedgerBeforeQuery(t *testing.T) {
	e := &engineServer{rows: `[]`}
	engine := e.start(t)
	ledger := &orderedLedger{engine: e}
	r, _ := memoryRunner(store.NewMemory(), nil)

	if _, err := r.Run(context.Background(), &TVL{Engine: engine, Ledger: ledger, Poll: fastPoll}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("ledger calls = %d, want 1", ledger.calls)
	}
	if ledger.submittedBefore {
		t.Error("ledger read after the query was submitted, want before")
	}
}

func TestTVLLedgerErrorSkipsQuery(t *testing.T) {
	e := &engineServer{rows: `[]`}
	engine := e.start(t)
	r, _ := memoryRunner(store.NewMemory(), nil)

	_, err := r.Run(context.Background(), &TVL{Engine: engine, Ledger: fakeLedger{err: errors.New("rpc down")}, Poll: fastPoll})
	if err == nil {
		t.Fatal("expected error from ledger")
	}
	if e.queryID != "" {
		t.Errorf("query %s submitted after ledger failure", e.queryID)
	}
}

func TestUniqueHoldersParams(t *testing.T) {
	e := &engineServer{rows: `[{"chain":"base","datetime":"2024-01-02","unique_holders":"12"}]`}
	engine := e.start(t)
	m := store.NewMemory()
	r, _ := memoryRunner(m, nil)

	if _, err := r.Run(context.Background(), &UniqueHolders{Engine: engine, Poll: fastPoll}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if e.queryID != "6517120" || e.params["snapshot_date"] != "2024-01-02T03:04:05Z" {
		t.Errorf("query %s params %v", e.queryID, e.params)
	}
	if len(m.Docs(store.UniqueHolders)) != 1 {
		t.Errorf("docs = %d, want 1", len(m.Docs(store.UniqueHolders)))
	}
}

const snapshotBody = `{
	"date": "2025-06-01",
	"reserveAssetsInUsd": 100,
	"ratio": 1.01,
	"usdoAmount": 99,
	"chainReserveInfo": [
		{"chainType": "ETH", "usdoAmount": 60, "totalTbillAmountInUsd": 60},
		{"chainType": "BASE", "usdoAmount": 39, "usdcAmount": 40}
	]
}`

func TestCollateralTwiceKeepsOneDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(snapshotBody))
	}))
	defer srv.Close()

	m := store.NewMemory()
	runner := &Runner{Open: func(context.Context) (Sink, error) { return m, nil }}
	p := &Collateral{Source: reserve.NewClient(srv.URL, 0)}

	first, err := runner.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runner.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !first.Upsert.Inserted || !second.Upsert.MatchedExisting {
		t.Errorf("upserts = %+v, %+v; want inserted then matched", first.Upsert, second.Upsert)
	}
	docs := m.Docs(store.CollateralAllocation)
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	var doc map[string]json.RawMessage
	_ = json.Unmarshal(docs[0], &doc)
	if _, ok := doc["totalTbillUsd"]; ok {
		t.Error("stored doc carries totalTbillUsd")
	}
	if string(doc["date"]) != `"2025-06-01"` {
		t.Errorf("date = %s", doc["date"])
	}
}

type failingPipeline struct{ err error }

func (f failingPipeline) Name() string { return "broken" }

func (f failingPipeline) Collect(context.Context, time.Time) (*Batch, error) { return nil, f.err }

func TestRunCollectErrorSkipsSink(t *testing.T) {
	m := store.NewMemory()
	rec := &fakeRecorder{}
	r, opened := memoryRunner(m, rec)
	want := &dune.PollTimeoutError{ExecutionID: "x", Attempts: 60, Budget: 5 * time.Minute}

	_, err := r.Run(context.Background(), failingPipeline{want})
	var pte *dune.PollTimeoutError
	if !errors.As(err, &pte) {
		t.Fatalf("error = %v, want *PollTimeoutError", err)
	}
	if *opened != 0 {
		t.Errorf("sink opened %d times, want 0", *opened)
	}
	if len(rec.entries) != 1 || rec.entries[0].Status != runlog.StatusFailure || rec.entries[0].Error == "" {
		t.Errorf("recorded = %+v, want one failure", rec.entries)
	}
}

func TestRunRecorderErrorIgnored(t *testing.T) {
	e := &engineServer{rows: `[]`}
	engine := e.start(t)
	m := store.NewMemory()
	r, opened := memoryRunner(m, &fakeRecorder{err: errors.New("redis down")})

	res, err := r.Run(context.Background(), &MintRedeem{Engine: engine, Poll: fastPoll})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Written != 0 || *opened != 0 {
		t.Errorf("written %d opened %d, want empty batch skipped", res.Written, *opened)
	}
}

type brokenSink struct{ *store.Memory }

func (brokenSink) InsertAppend(context.Context, string, []any) (int, error) {
	return 0, &store.PersistenceError{Op: "insert", Collection: store.TVL, Err: errors.New("connection reset")}
}

func TestRunSinkErrorClosesSink(t *testing.T) {
	e := &engineServer{rows: `[]`}
	engine := e.start(t)
	m := store.NewMemory()
	r := &Runner{Open: func(context.Context) (Sink, error) { return brokenSink{m}, nil }}

	_, err := r.Run(context.Background(), &TVL{Engine: engine, Ledger: fakeLedger{tvl: 1}, Poll: fastPoll})
	var pe *store.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *PersistenceError", err)
	}
	if _, err := m.InsertAppend(context.Background(), store.TVL, []any{1}); err == nil {
		t.Error("sink still open after failed run")
	}
}

func TestIsoSeconds(t *testing.T) {
	in := time.Date(2024, 1, 1, 8, 0, 0, 999_000_000, time.FixedZone("HKT", 8*3600))
	if got := isoSeconds(in); got != "2024-01-01T00:00:00Z" {
		t.Errorf("isoSeconds(%v) = %q, want 2024-01-01T00:00:00Z", in, got)
	}
}
