package dto

import "github.com/chogori-io/k2go/transport"

// Wire verb identifiers. Values mirror the original K2 RPC dispatch codes;
// what matters to this client is only that they're stable and distinct,
// since the server side assigns their real meaning.
const (
	VerbK23SIRead          transport.Verb = 100
	VerbK23SIWrite         transport.Verb = 101
	VerbK23SITxnHeartbeat  transport.Verb = 102
	VerbK23SITxnEnd        transport.Verb = 103
	VerbGetPartitionMap    transport.Verb = 110
	VerbCreateCollection   transport.Verb = 111
	VerbGetTimestampBatch  transport.Verb = 120
)

// Keyed is satisfied by every request type that carries a routing key. The
// CPO client's PartitionRequest uses RoutingKey to resolve the partition
// map before every send; requests with no natural key (e.g. a timestamp
// batch request, which isn't collection-scoped) return ok=false. WithPVID
// returns a copy of the request stamped with the resolved partition's
// version id (spec §4.4 step 2); a request with no routing key is never
// stamped and just returns itself unchanged.
type Keyed interface {
	RoutingKey() (Key, bool)
	WithPVID(pvid PVID) any
}

// ReadRequest is the K23SI_READ wire request: fetch the value visible to
// mtr's read timestamp for key in collectionName. PVID is filled in by
// PartitionRequest from the partition map, not set by the caller.
type ReadRequest struct {
	CollectionName string
	Key            Key
	MTR            MTR
	PVID           PVID
}

func (r ReadRequest) RoutingKey() (Key, bool) { return r.Key, true }

func (r ReadRequest) WithPVID(pvid PVID) any {
	r.PVID = pvid
	return r
}

// ReadResponse carries back the value, if any, and the status
// distinguishing "found", "not found", and the retriable routing/abort
// statuses of dto.Status.
type ReadResponse struct {
	Status Status
	Value  []byte
}

func (r ReadResponse) GetStatus() Status { return r.Status }

// WriteRequest is the K23SI_WRITE wire request. IsDelete marks a
// tombstone write. TRH carries the transaction record holder's key, and
// IsFirstWrite marks the handle's first write, the one that creates the
// TRH. PVID is filled in by PartitionRequest.
type WriteRequest struct {
	CollectionName string
	Key            Key
	Value          []byte
	IsDelete       bool
	MTR            MTR
	TRH            Key
	IsFirstWrite   bool
	PVID           PVID
}

func (r WriteRequest) RoutingKey() (Key, bool) { return r.Key, true }

func (r WriteRequest) WithPVID(pvid PVID) any {
	r.PVID = pvid
	return r
}

// WriteResponse reports whether the write committed, aborted on a
// conflicting transaction, or was rejected as too old relative to the
// partition's watermark.
type WriteResponse struct {
	Status Status
}

func (r WriteResponse) GetStatus() Status { return r.Status }

// HeartbeatRequest keeps a transaction's TRH alive past its deadline. PVID
// is filled in by PartitionRequest.
type HeartbeatRequest struct {
	CollectionName string
	TRH            Key
	MTR            MTR
	PVID           PVID
}

func (r HeartbeatRequest) RoutingKey() (Key, bool) { return r.TRH, true }

func (r HeartbeatRequest) WithPVID(pvid PVID) any {
	r.PVID = pvid
	return r
}

// HeartbeatResponse reports the TRH's current liveness status; a
// TransactionNotFound status here is the server telling the client its
// TRH has already been finalized or never existed.
type HeartbeatResponse struct {
	Status Status
}

func (r HeartbeatResponse) GetStatus() Status { return r.Status }

// EndAction selects whether EndRequest commits or aborts the transaction's
// writes at its TRH.
type EndAction int

const (
	EndCommit EndAction = iota
	EndAbort
)

// EndRequest finalizes a transaction at its TRH: commit or abort every
// write made under mtr. PVID is filled in by PartitionRequest.
type EndRequest struct {
	CollectionName string
	TRH            Key
	MTR            MTR
	Action         EndAction
	WriteKeys      []Key // participant keys the TRH must fan the decision out to.
	PVID           PVID
}

func (r EndRequest) RoutingKey() (Key, bool) { return r.TRH, true }

func (r EndRequest) WithPVID(pvid PVID) any {
	r.PVID = pvid
	return r
}

// EndResponse reports whether the finalize action landed.
type EndResponse struct {
	Status Status
}

func (r EndResponse) GetStatus() Status { return r.Status }

// GetPartitionMapRequest asks the CPO for the current partition map of a
// named collection.
type GetPartitionMapRequest struct {
	CollectionName string
}

func (r GetPartitionMapRequest) RoutingKey() (Key, bool) { return nil, false }

// WithPVID is a no-op: GetPartitionMapRequest is sent straight to the
// oracle via callOracle, never through PartitionRequest's stamping step.
func (r GetPartitionMapRequest) WithPVID(_ PVID) any { return r }

// GetPartitionMapResponse carries the collection's current metadata and
// partition map, or a KeyNotFound status if the collection doesn't exist.
type GetPartitionMapResponse struct {
	Status     Status
	Collection Collection
}

func (r GetPartitionMapResponse) GetStatus() Status { return r.Status }

// CreateCollectionRequest asks the CPO to create a new collection with
// the given metadata and initial range split points.
type CreateCollectionRequest struct {
	CollectionName string
	Metadata       CollectionMetadata
	RangeSplits    []Key // interior split points; CPO assigns ranges to partitions.
}

func (r CreateCollectionRequest) RoutingKey() (Key, bool) { return nil, false }

// WithPVID is a no-op: CreateCollectionRequest is sent straight to the
// oracle, never through PartitionRequest's stamping step.
func (r CreateCollectionRequest) WithPVID(_ PVID) any { return r }

// CreateCollectionResponse reports whether the collection was created; a
// status other than OK on a collection that already exists is an
// application-level error the caller can choose to ignore.
type CreateCollectionResponse struct {
	Status Status
}

func (r CreateCollectionResponse) GetStatus() Status { return r.Status }

// GetTimestampBatchRequest asks the timestamp oracle for a batch of count
// monotonically increasing timestamps.
type GetTimestampBatchRequest struct {
	Count uint32
}

func (r GetTimestampBatchRequest) RoutingKey() (Key, bool) { return nil, false }

// WithPVID is a no-op: a timestamp batch request isn't collection-scoped
// and is never routed through PartitionRequest.
func (r GetTimestampBatchRequest) WithPVID(_ PVID) any { return r }

// GetTimestampBatchResponse carries the issued batch: [Start, Start+Count)
// are all valid, ordered timestamps.
type GetTimestampBatchResponse struct {
	Status Status
	Start  Timestamp
	Count  uint32
}

func (r GetTimestampBatchResponse) GetStatus() Status { return r.Status }
