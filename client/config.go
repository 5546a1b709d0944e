// Package client wires the transport, placement-oracle, timestamp, and
// transaction layers into the one object application code talks to: a
// K23SIClient.
package client

import "time"

// Config is the facade's full set of runtime options, bindable from a
// binary's command line or environment via go-flags struct tags (see
// cmd/k2bench for a worked example).
type Config struct {
	TCPRemotes []string `long:"tcp-remotes" env:"K2_TCP_REMOTES" description:"tcp://host:port endpoints of partition servers this client may be routed to" required:"true"`
	CPO        string   `long:"cpo" env:"K2_CPO" description:"tcp://host:port endpoint of the control-plane/placement oracle" required:"true"`

	CreateCollectionDeadline time.Duration `long:"create-collection-deadline" env:"K2_CREATE_COLLECTION_DEADLINE" default:"1s" description:"deadline for MakeCollection's create + initial partition-map fetch"`
	RetentionWindow          time.Duration `long:"retention-window" env:"K2_RETENTION_WINDOW" default:"600s" description:"default retention window passed to MakeCollection"`
	TxnEndDeadline           time.Duration `long:"txn-end-deadline" env:"K2_TXN_END_DEADLINE" default:"60s" description:"deadline for a transaction's finalize RPC"`

	DefaultTxnDeadline time.Duration `long:"default-txn-deadline" env:"K2_DEFAULT_TXN_DEADLINE" default:"1s" description:"deadline applied to a BeginTxn's individual read/write RPCs unless overridden"`
	DefaultPriority    int           `long:"default-priority" env:"K2_DEFAULT_PRIORITY" default:"1" description:"default TxnPriority (0=Low, 1=Medium, 2=High)"`
	SyncFinalize       bool          `long:"sync-finalize" env:"K2_SYNC_FINALIZE" description:"copied into txn.Options.SyncFinalize; End does not send it to the TRH"`
}

// DefaultConfig returns a Config with every default spec §6 names, empty
// remotes/CPO left for the caller to fill in (they have no sane default).
func DefaultConfig() Config {
	return Config{
		CreateCollectionDeadline: 1 * time.Second,
		RetentionWindow:          600 * time.Second,
		TxnEndDeadline:           60 * time.Second,
		DefaultTxnDeadline:       1 * time.Second,
		DefaultPriority:          1,
	}
}
