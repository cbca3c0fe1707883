package node

import (
	"context"
	"hash"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/utils"
	"github.com/kysee/zkledger/zk-asset/aggregator"
	"github.com/kysee/zkledger/zk-asset/balancer"
	"github.com/kysee/zkledger/zk-asset/config"
	"github.com/kysee/zkledger/zk-asset/crypto"
	"github.com/kysee/zkledger/zk-asset/effects"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/store"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
	"github.com/kysee/zkledger/zk-asset/verifier"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTimeReversed      = errors.New("node: block time goes backwards")
	ErrNotEmpty          = errors.New("node: genesis on a non-empty ledger")
	ErrUnknownCommitment = errors.New("node: unknown commitment")
	ErrHasherMismatch    = errors.New("node: plonk proofs require the mimc tree hasher")
)

// Ledger is the authoritative state of both token schemes and of the
// contract balances. Transactions are applied one at a time; queries may
// run concurrently with each other.
type Ledger struct {
	mtx sync.RWMutex

	cfg      config.Config
	logger   zerolog.Logger
	hasher   func() hash.Hash
	scheme   crypto.Scheme
	verifier verifier.Verifier
	store    *store.Store

	shielded *shielded.State
	utxos    *unshielded.Set
	balances *effects.Balances
	time     uint64
}

type Option func(*Ledger)

func WithVerifier(v verifier.Verifier) Option {
	return func(l *Ledger) { l.verifier = v }
}

func WithScheme(s crypto.Scheme) Option {
	return func(l *Ledger) { l.scheme = s }
}

func WithStore(s *store.Store) Option {
	return func(l *Ledger) { l.store = s }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger opens the ledger described by cfg and loads any state its
// store already holds.
func NewLedger(cfg *config.Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		cfg:    *cfg,
		logger: cfg.NewLogger(os.Stderr),
		hasher: cfg.Hasher(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.scheme == nil {
		ped, err := crypto.NewPedersen(cfg.BaseCacheSize)
		if err != nil {
			return nil, err
		}
		l.scheme = ped
	}
	if l.verifier == nil {
		l.logger.Warn().Msg("no proof verifier configured, accepting all proofs")
		l.verifier = verifier.AcceptAll
	}
	if _, ok := l.verifier.(*verifier.Plonk); ok && cfg.TreeHasher != utils.HasherMiMC {
		return nil, errors.Wrapf(ErrHasherMismatch, "tree hasher %q", cfg.TreeHasher)
	}
	if l.store == nil {
		if cfg.DataDir == "" {
			l.store = store.NewMemory()
		} else {
			s, err := store.Open(cfg.DataDir, cfg.DBCache, cfg.DBHandles)
			if err != nil {
				return nil, err
			}
			l.store = s
		}
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	var err error
	if l.shielded, err = l.store.LoadShielded(l.hasher); err != nil {
		return err
	}
	if l.utxos, err = l.store.LoadUtxos(); err != nil {
		return err
	}
	if l.balances, err = l.store.LoadBalances(); err != nil {
		return err
	}
	meta, err := l.store.ReadMeta()
	if err != nil {
		return err
	}
	if meta != nil {
		l.time = meta.Time
	}
	l.logger.Info().
		Uint64("time", l.time).
		Uint64("leaves", l.shielded.NumLeaves()).
		Int("utxos", l.utxos.Len()).
		Str("root", l.shielded.Root().Hex()).
		Msg("ledger loaded")
	return nil
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

// Genesis is the initial content of an empty ledger.
type Genesis struct {
	Time        uint64
	Commitments []types.Commitment
	Utxos       []*types.Utxo
	Balances    map[types.ContractAddress]map[types.TokenType]*uint256.Int
}

// InitGenesis seeds an empty ledger and finalizes the first block at g.Time.
func (l *Ledger) InitGenesis(g *Genesis) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.shielded.NumLeaves() > 0 || l.utxos.Len() > 0 || len(l.balances.Contracts()) > 0 {
		return ErrNotEmpty
	}

	cs := l.shielded.Begin()
	for _, cm := range g.Commitments {
		if _, err := cs.ApplyOutput(&shielded.Output{Commitment: cm}); err != nil {
			return err
		}
	}
	utxos := unshielded.NewSet()
	for _, u := range g.Utxos {
		if err := utxos.Insert(u); err != nil {
			return err
		}
	}

	first, leaves := cs.Leaves()
	update := &store.Update{
		FirstLeaf:  first,
		Leaves:     leaves,
		AddedUtxos: g.Utxos,
		Balances:   g.Balances,
	}
	if err := l.store.WriteUpdate(update); err != nil {
		return errors.Wrap(err, "node: write genesis")
	}
	if err := l.shielded.Commit(cs); err != nil {
		return err
	}
	l.utxos = utxos
	for addr, bals := range g.Balances {
		for tt, v := range bals {
			l.balances.Set(addr, tt, v)
		}
	}
	return l.finalize(g.Time)
}

// pending holds the changesets of a transaction that passed every check.
type pending struct {
	shielded *shielded.Changeset
	utxos    *unshielded.Changeset
	balances *effects.Changeset
}

// check runs every validation of tx against the current state. The
// independent checks run concurrently; when more than one fails, the
// error reported is the first in a fixed order so that results do not
// depend on scheduling.
func (l *Ledger) check(ctx context.Context, tx *Transaction) (*pending, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	for _, b := range tx.Shielded {
		if err := balancer.CheckStructure(b); err != nil {
			return nil, err
		}
	}
	for _, o := range tx.Unshielded {
		if err := o.Validate(); err != nil {
			return nil, err
		}
	}

	p := &pending{
		shielded: l.shielded.Begin(),
		utxos:    l.utxos.Begin(),
	}
	var (
		proofErr, shieldedErr, utxoErr, balanceErr, effectsErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		var jobs []verifier.Job
		for _, b := range tx.Shielded {
			jobs = append(jobs, verifier.BundleJobs(b)...)
		}
		proofErr = verifier.VerifyBatch(ctx, l.verifier, jobs, l.cfg.ProofWorkers)
		return nil
	})
	g.Go(func() error {
		for _, b := range tx.Shielded {
			if shieldedErr = p.shielded.ApplyBundle(b); shieldedErr != nil {
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, o := range tx.Unshielded {
			if utxoErr = p.utxos.ApplyOffer(o); utxoErr != nil {
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, b := range tx.Shielded {
			if balanceErr = balancer.Check(l.scheme, b); balanceErr != nil {
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		p.balances, effectsErr = effects.Reconcile(tx.Calls, tx.Bundles(), tx.Offers(), l.balances)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{proofErr, shieldedErr, utxoErr, balanceErr, effectsErr} {
		if err != nil {
			return nil, err
		}
	}

	if _, err := aggregator.Aggregate(tx.Shielded, tx.Unshielded, tx.Calls); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks tx against the current state without applying it.
func (l *Ledger) Validate(ctx context.Context, tx *Transaction) error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	_, err := l.check(ctx, tx)
	return err
}

// ApplyTransaction applies tx if every check passes. A rejected
// transaction leaves no trace in the ledger.
func (l *Ledger) ApplyTransaction(ctx context.Context, tx *Transaction) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	p, err := l.check(ctx, tx)
	if err != nil {
		l.logger.Debug().Err(err).Msg("transaction rejected")
		return err
	}

	first, leaves := p.shielded.Leaves()
	update := &store.Update{
		FirstLeaf:    first,
		Leaves:       leaves,
		Nullifiers:   p.shielded.Nullifiers(),
		AddedUtxos:   p.utxos.Added(),
		RemovedUtxos: p.utxos.Removed(),
		Balances:     make(map[types.ContractAddress]map[types.TokenType]*uint256.Int),
	}
	for _, addr := range p.balances.Touched() {
		update.Balances[addr] = p.balances.Result(addr)
	}
	if err := l.store.WriteUpdate(update); err != nil {
		return errors.Wrap(err, "node: persist transaction")
	}

	// nothing else can move the versions while the lock is held
	if err := l.shielded.Commit(p.shielded); err != nil {
		return err
	}
	if err := l.utxos.Commit(p.utxos); err != nil {
		return err
	}
	if err := l.balances.Commit(p.balances); err != nil {
		return err
	}

	l.logger.Debug().
		Int("bundles", len(tx.Shielded)).
		Int("offers", len(tx.Unshielded)).
		Int("calls", len(tx.Calls)).
		Int("commitments", len(leaves)).
		Msg("transaction applied")
	return nil
}

// FinalizeBlock closes a block at ledger time ts: the current root becomes
// usable by inputs and roots older than the retention window are evicted.
func (l *Ledger) FinalizeBlock(ts uint64) (common.Hash, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if err := l.finalize(ts); err != nil {
		return common.Hash{}, err
	}
	return l.shielded.Root(), nil
}

func (l *Ledger) finalize(ts uint64) error {
	if ts < l.time {
		return errors.Wrapf(ErrTimeReversed, "last(%d), got(%d)", l.time, ts)
	}
	root, evicted := l.shielded.PostBlock(ts, l.cfg.RootRetentionSeconds)
	if err := l.store.WriteBlock(root, ts, evicted, l.shielded.NumLeaves()); err != nil {
		return errors.Wrap(err, "node: persist block")
	}
	l.time = ts

	l.logger.Info().
		Uint64("time", ts).
		Str("root", root.Hex()).
		Int("evicted", len(evicted)).
		Msg("block finalized")
	return nil
}
