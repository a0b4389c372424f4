// Package memory implements domain.Store entirely in process. It backs tests
// and local development where a Postgres instance is not available. A single
// mutex serializes transactions, which makes the per-market advisory lock a
// no-op here; the postgres store is the one that provides real row-level
// concurrency.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

type tables struct {
	markets map[string]domain.Market     // by ID
	holders map[string]domain.Holder     // by marketID + "\x00" + wallet
	txs     map[string]domain.Transaction // by signature
	txSeq   int64
	buckets map[string]domain.PriceBucket // by marketID + interval + bucket start
	users   map[string]domain.User        // by wallet
}

func newTables() *tables {
	return &tables{
		markets: make(map[string]domain.Market),
		holders: make(map[string]domain.Holder),
		txs:     make(map[string]domain.Transaction),
		buckets: make(map[string]domain.PriceBucket),
		users:   make(map[string]domain.User),
	}
}

// clone shallow-copies every table. Rows are value types, so a map copy is a
// full snapshot.
func (t *tables) clone() *tables {
	c := newTables()
	c.txSeq = t.txSeq
	for k, v := range t.markets {
		c.markets[k] = v
	}
	for k, v := range t.holders {
		c.holders[k] = v
	}
	for k, v := range t.txs {
		c.txs[k] = v
	}
	for k, v := range t.buckets {
		c.buckets[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	return c
}

func holderKey(marketID, wallet string) string {
	return marketID + "\x00" + wallet
}

func bucketKey(marketID string, iv domain.Interval, start time.Time) string {
	return marketID + "\x00" + string(iv) + "\x00" + start.UTC().Format(time.RFC3339)
}

// Store is the in-memory domain.Store.
type Store struct {
	mu   *sync.Mutex
	t    *tables
	inTx bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, t: newTables()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx serializes fn under the store mutex and snapshots all tables first;
// if fn returns an error the snapshot is restored, so partial writes never
// become visible. Nested calls run in the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.t.clone()
	tx := &Store{mu: s.mu, t: s.t, inTx: true}
	if err := fn(tx); err != nil {
		*s.t = *snapshot
		return err
	}
	return nil
}

// LockMarket is a no-op: the transaction mutex already serializes everything.
func (s *Store) LockMarket(ctx context.Context, marketID string) error {
	return nil
}

func (s *Store) Markets() domain.MarketStore           { return marketStore{s} }
func (s *Store) Holders() domain.HolderStore           { return holderStore{s} }
func (s *Store) Transactions() domain.TransactionStore { return txStore{s} }
func (s *Store) Buckets() domain.PriceBucketStore      { return bucketStore{s} }
func (s *Store) Users() domain.UserStore               { return userStore{s} }

type marketStore struct{ s *Store }

func (m marketStore) Create(ctx context.Context, mk domain.Market) error {
	defer m.s.lock()()
	m.s.t.markets[mk.ID] = mk
	return nil
}

func (m marketStore) Update(ctx context.Context, mk domain.Market) error {
	defer m.s.lock()()
	if _, ok := m.s.t.markets[mk.ID]; !ok {
		return domain.ErrNotFound
	}
	m.s.t.markets[mk.ID] = mk
	return nil
}

func (m marketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	defer m.s.lock()()
	mk, ok := m.s.t.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

func (m marketStore) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	defer m.s.lock()()
	for _, mk := range m.s.t.markets {
		if mk.Address == address {
			return mk, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (m marketStore) GetByMint(ctx context.Context, mint string) (domain.Market, error) {
	defer m.s.lock()()
	for _, mk := range m.s.t.markets {
		if mk.Mint == mint {
			return mk, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (m marketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	defer m.s.lock()()
	var out []domain.Market
	for _, mk := range m.s.t.markets {
		if mk.Status == domain.MarketStatusActive {
			out = append(out, mk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (m marketStore) Count(ctx context.Context) (int64, error) {
	defer m.s.lock()()
	return int64(len(m.s.t.markets)), nil
}

type holderStore struct{ s *Store }

func (h holderStore) Get(ctx context.Context, marketID, wallet string) (domain.Holder, error) {
	defer h.s.lock()()
	hd, ok := h.s.t.holders[holderKey(marketID, wallet)]
	if !ok {
		return domain.Holder{}, domain.ErrNotFound
	}
	return hd, nil
}

func (h holderStore) Create(ctx context.Context, hd domain.Holder) error {
	defer h.s.lock()()
	h.s.t.holders[holderKey(hd.MarketID, hd.Wallet)] = hd
	return nil
}

func (h holderStore) Update(ctx context.Context, hd domain.Holder) error {
	defer h.s.lock()()
	key := holderKey(hd.MarketID, hd.Wallet)
	if _, ok := h.s.t.holders[key]; !ok {
		return domain.ErrNotFound
	}
	h.s.t.holders[key] = hd
	return nil
}

func (h holderStore) Delete(ctx context.Context, marketID, wallet string) error {
	defer h.s.lock()()
	delete(h.s.t.holders, holderKey(marketID, wallet))
	return nil
}

func (h holderStore) TopByBalance(ctx context.Context, marketID string, limit int) ([]domain.Holder, error) {
	defer h.s.lock()()
	var out []domain.Holder
	for _, hd := range h.s.t.holders {
		if hd.MarketID == marketID {
			out = append(out, hd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h holderStore) CountByMarket(ctx context.Context, marketID string) (int64, error) {
	defer h.s.lock()()
	var n int64
	for _, hd := range h.s.t.holders {
		if hd.MarketID == marketID {
			n++
		}
	}
	return n, nil
}

func (h holderStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Holder, error) {
	defer h.s.lock()()
	var out []domain.Holder
	for _, hd := range h.s.t.holders {
		if hd.Wallet == wallet {
			out = append(out, hd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

type txStore struct{ s *Store }

func (t txStore) Insert(ctx context.Context, tr domain.Transaction) (domain.Transaction, bool, error) {
	defer t.s.lock()()
	if existing, ok := t.s.t.txs[tr.Signature]; ok {
		return existing, false, nil
	}
	t.s.t.txSeq++
	tr.ID = t.s.t.txSeq
	t.s.t.txs[tr.Signature] = tr
	return tr, true, nil
}

func (t txStore) Exists(ctx context.Context, signature string) (bool, error) {
	defer t.s.lock()()
	_, ok := t.s.t.txs[signature]
	return ok, nil
}

func (t txStore) GetBySignature(ctx context.Context, signature string) (domain.Transaction, error) {
	defer t.s.lock()()
	tr, ok := t.s.t.txs[signature]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tr, nil
}

func (t txStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	defer t.s.lock()()
	return t.list(opts, func(tr domain.Transaction) bool { return tr.MarketID == marketID }), nil
}

func (t txStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Transaction, error) {
	defer t.s.lock()()
	return t.list(opts, func(tr domain.Transaction) bool { return tr.Wallet == wallet }), nil
}

func (t txStore) list(opts domain.ListOpts, keep func(domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	for _, tr := range t.s.t.txs {
		if !keep(tr) {
			continue
		}
		if opts.Since != nil && tr.BlockTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !tr.BlockTime.Before(*opts.Until) {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.After(out[j].BlockTime) })
	return page(out, opts)
}

func (t txStore) Stats(ctx context.Context, marketID string, since time.Time) (int64, int64, error) {
	defer t.s.lock()()
	var volume, trades int64
	for _, tr := range t.s.t.txs {
		if tr.MarketID != marketID || tr.BlockTime.Before(since) {
			continue
		}
		if tr.Type != domain.TradeTypeBuy && tr.Type != domain.TradeTypeSell {
			continue
		}
		volume += tr.TotalValue
		trades++
	}
	return volume, trades, nil
}

func (t txStore) TopMarketsByVolume(ctx context.Context, since time.Time, limit int) ([]domain.MarketVolume, error) {
	defer t.s.lock()()
	agg := make(map[string]*domain.MarketVolume)
	for _, tr := range t.s.t.txs {
		if tr.BlockTime.Before(since) {
			continue
		}
		if tr.Type != domain.TradeTypeBuy && tr.Type != domain.TradeTypeSell {
			continue
		}
		mv, ok := agg[tr.MarketID]
		if !ok {
			mv = &domain.MarketVolume{MarketID: tr.MarketID}
			agg[tr.MarketID] = mv
		}
		mv.Volume += tr.TotalValue
		mv.Trades++
	}
	out := make([]domain.MarketVolume, 0, len(agg))
	for _, mv := range agg {
		out = append(out, *mv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].MarketID < out[j].MarketID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t txStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Transaction, error) {
	defer t.s.lock()()
	var out []domain.Transaction
	for _, tr := range t.s.t.txs {
		if tr.BlockTime.Before(before) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockTime.Before(out[j].BlockTime) })
	return out, nil
}

type bucketStore struct{ s *Store }

func (b bucketStore) Record(ctx context.Context, marketID string, iv domain.Interval, bucketStart time.Time, price, volume int64, tradeTime time.Time) error {
	defer b.s.lock()()
	key := bucketKey(marketID, iv, bucketStart)
	bk, ok := b.s.t.buckets[key]
	if !ok {
		b.s.t.buckets[key] = domain.PriceBucket{
			MarketID:      marketID,
			BucketStart:   bucketStart.UTC(),
			Interval:      iv,
			Price:         price,
			Volume:        volume,
			Trades:        1,
			LastTradeTime: tradeTime.UTC(),
		}
		return nil
	}
	bk.Volume += volume
	bk.Trades++
	if !tradeTime.UTC().Before(bk.LastTradeTime) {
		bk.Price = price
		bk.LastTradeTime = tradeTime.UTC()
	}
	b.s.t.buckets[key] = bk
	return nil
}

func (b bucketStore) Series(ctx context.Context, marketID string, iv domain.Interval, limit int) ([]domain.PriceBucket, error) {
	defer b.s.lock()()
	var out []domain.PriceBucket
	for _, bk := range b.s.t.buckets {
		if bk.MarketID == marketID && bk.Interval == iv {
			out = append(out, bk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (b bucketStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PriceBucket, error) {
	defer b.s.lock()()
	var out []domain.PriceBucket
	for _, bk := range b.s.t.buckets {
		if bk.BucketStart.Before(before) {
			out = append(out, bk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

type userStore struct{ s *Store }

func (u userStore) GetByWallet(ctx context.Context, wallet string) (domain.User, error) {
	defer u.s.lock()()
	usr, ok := u.s.t.users[wallet]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return usr, nil
}

func (u userStore) AddCreatorEarnings(ctx context.Context, wallet string, amount int64) error {
	defer u.s.lock()()
	usr := u.upsert(wallet)
	usr.TotalEarningsAsCreator += amount
	usr.UpdatedAt = time.Now().UTC()
	u.s.t.users[wallet] = usr
	return nil
}

func (u userStore) IncrementMarketsCreated(ctx context.Context, wallet string) error {
	defer u.s.lock()()
	usr := u.upsert(wallet)
	usr.MarketsCreated++
	usr.UpdatedAt = time.Now().UTC()
	u.s.t.users[wallet] = usr
	return nil
}

func (u userStore) upsert(wallet string) domain.User {
	usr, ok := u.s.t.users[wallet]
	if !ok {
		now := time.Now().UTC()
		usr = domain.User{ID: uuid.NewString(), Wallet: wallet, CreatedAt: now, UpdatedAt: now}
	}
	return usr
}

func (u userStore) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	defer u.s.lock()()
	out := make([]domain.User, 0, len(u.s.t.users))
	for _, usr := range u.s.t.users {
		out = append(out, usr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalEarningsAsCreator != out[j].TotalEarningsAsCreator {
			return out[i].TotalEarningsAsCreator > out[j].TotalEarningsAsCreator
		}
		return strings.Compare(out[i].Wallet, out[j].Wallet) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func page[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && len(in) > opts.Limit {
		in = in[:opts.Limit]
	}
	return in
}

var _ domain.Store = (*Store)(nil)
