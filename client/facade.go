package client

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/chogori-io/k2go/cpo"
	"github.com/chogori-io/k2go/dto"
	"github.com/chogori-io/k2go/transport"
	"github.com/chogori-io/k2go/tso"
	"github.com/chogori-io/k2go/txn"
)

// Counters is a point-in-time snapshot of a K23SIClient's transaction
// counters, matching the table spec §6 names. It is produced by
// K23SIClient.Counters(); the live values are kept internally as
// prometheus counters plus plain atomics so the snapshot stays cheap to
// take.
type Counters struct {
	ReadOps        uint64
	WriteOps       uint64
	Heartbeats     uint64
	TotalTxns      uint64
	SuccessfulTxns uint64
	AbortConflicts uint64
	AbortTooOld    uint64
}

type promCounters struct {
	readOps, writeOps, heartbeats                        prometheus.Counter
	totalTxns, successfulTxns, abortConflicts, abortTooOld prometheus.Counter

	readOpsAtomic, writeOpsAtomic, heartbeatsAtomic               atomic.Uint64
	totalTxnsAtomic, successfulTxnsAtomic, abortConflictsAtomic    atomic.Uint64
	abortTooOldAtomic                                              atomic.Uint64
}

func newPromCounters(registerer prometheus.Registerer) *promCounters {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "k2go",
		Subsystem: "client",
		Name:      "ops_total",
		Help:      "K23SI client operation counters, by kind.",
	}, []string{"kind"})
	if registerer != nil {
		registerer.MustRegister(vec)
	}
	return &promCounters{
		readOps:        vec.WithLabelValues("read_ops"),
		writeOps:       vec.WithLabelValues("write_ops"),
		heartbeats:     vec.WithLabelValues("heartbeats"),
		totalTxns:      vec.WithLabelValues("total_txns"),
		successfulTxns: vec.WithLabelValues("successful_txns"),
		abortConflicts: vec.WithLabelValues("abort_conflicts"),
		abortTooOld:    vec.WithLabelValues("abort_too_old"),
	}
}

func (c *promCounters) IncReadOps()        { c.readOps.Inc(); c.readOpsAtomic.Add(1) }
func (c *promCounters) IncWriteOps()       { c.writeOps.Inc(); c.writeOpsAtomic.Add(1) }
func (c *promCounters) IncHeartbeats()     { c.heartbeats.Inc(); c.heartbeatsAtomic.Add(1) }
func (c *promCounters) IncTotalTxns()      { c.totalTxns.Inc(); c.totalTxnsAtomic.Add(1) }
func (c *promCounters) IncSuccessfulTxns() { c.successfulTxns.Inc(); c.successfulTxnsAtomic.Add(1) }
func (c *promCounters) IncAbortConflicts() { c.abortConflicts.Inc(); c.abortConflictsAtomic.Add(1) }
func (c *promCounters) IncAbortTooOld()    { c.abortTooOld.Inc(); c.abortTooOldAtomic.Add(1) }

func (c *promCounters) snapshot() Counters {
	return Counters{
		ReadOps:        c.readOpsAtomic.Load(),
		WriteOps:       c.writeOpsAtomic.Load(),
		Heartbeats:     c.heartbeatsAtomic.Load(),
		TotalTxns:      c.totalTxnsAtomic.Load(),
		SuccessfulTxns: c.successfulTxnsAtomic.Load(),
		AbortConflicts: c.abortConflictsAtomic.Load(),
		AbortTooOld:    c.abortTooOldAtomic.Load(),
	}
}

// K23SIClient is the facade application code drives: it owns the
// transport dispatcher and the CPO/timestamp clients built on top of it,
// and mints txn.Handle values for BeginTxn.
//
// One K23SIClient corresponds to one logical shard in the Go translation
// of the source's single-threaded-shard model (see DESIGN.md); an
// application that wants shard-parallelism runs more than one
// K23SIClient rather than sharing one across goroutines issuing
// conflicting transactions.
type K23SIClient struct {
	cfg  Config
	log  *logrus.Entry

	dispatcher *transport.ProtocolDispatcher
	cpoClient  *cpo.Client
	tsoClient  *tso.Client

	counters *promCounters
}

// New validates cfg's endpoints and constructs a client ready for Start.
func New(cfg Config, log *logrus.Entry, registerer prometheus.Registerer) (*K23SIClient, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	allocator := func() *transport.Payload { return transport.NewPayload() }

	cpoEndpoint, err := transport.FromURL(cfg.CPO, allocator)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cpo endpoint")
	}
	for _, remote := range cfg.TCPRemotes {
		if _, err := transport.FromURL(remote, allocator); err != nil {
			return nil, errors.Wrapf(err, "invalid tcp remote %q", remote)
		}
	}

	dispatcher := transport.NewProtocolDispatcher(log, registerer)
	counters := newPromCounters(registerer)

	return &K23SIClient{
		cfg:        cfg,
		log:        log.WithField("component", "k23si_client"),
		dispatcher: dispatcher,
		cpoClient:  cpo.NewClient(dispatcher, cpoEndpoint, log),
		tsoClient:  tso.NewClient(dispatcher, cpoEndpoint, log),
		counters:   counters,
	}, nil
}

// Start performs no blocking handshake — channels are dialed lazily on
// first send — but exists as a lifecycle hook symmetric with
// GracefulStop, matching the teacher's cmd/* binaries' start/stop
// convention.
func (c *K23SIClient) Start(ctx context.Context) error {
	c.log.Info("k23si client started")
	return nil
}

// GracefulStop closes every channel the client's dispatcher has opened.
func (c *K23SIClient) GracefulStop(ctx context.Context) error {
	return c.dispatcher.Stop(ctx)
}

// MakeCollection creates collection name with the configured retention
// window (cfg.RetentionWindow), waiting up to cfg.CreateCollectionDeadline for the create and the
// initial partition-map fetch.
func (c *K23SIClient) MakeCollection(ctx context.Context, name string, rangeSplits []dto.Key) (dto.Status, error) {
	metadata := dto.CollectionMetadata{
		HeartbeatDeadline: c.cfg.DefaultTxnDeadline * 2,
		RetentionWindow:   c.cfg.RetentionWindow,
	}
	return c.cpoClient.CreateCollection(ctx, name, metadata, rangeSplits, c.cfg.CreateCollectionDeadline)
}

// DefaultTxnOptions returns the txn.Options BeginTxn applies when called
// with no override, built from the client's configured defaults.
func (c *K23SIClient) DefaultTxnOptions() txn.Options {
	return txn.Options{
		Deadline:     c.cfg.DefaultTxnDeadline,
		EndDeadline:  c.cfg.TxnEndDeadline,
		Priority:     c.cfg.DefaultPriority,
		SyncFinalize: c.cfg.SyncFinalize,
	}
}

// BeginTxn obtains a fresh timestamp and mints a Handle in state Active.
// opts is the per-transaction K2TxnOptions equivalent (spec §3's per-handle
// options state, original's beginTxn(const K2TxnOptions&)); callers that
// want the client's configured defaults pass none, equivalent to passing
// DefaultTxnOptions().
func (c *K23SIClient) BeginTxn(ctx context.Context, opts ...txn.Options) (*txn.Handle, error) {
	ts, err := c.tsoClient.GetTimestamp(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring timestamp")
	}
	options := c.DefaultTxnOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	mtr := dto.MTR{
		TxnID:     dto.NewTxnID(),
		Timestamp: ts,
		Priority:  dto.TxnPriority(options.Priority),
	}
	return txn.New(mtr, c.cpoClient, options, c.counters, c.log), nil
}

// Counters returns a snapshot of the client's transaction counters.
func (c *K23SIClient) Counters() Counters {
	return c.counters.snapshot()
}
