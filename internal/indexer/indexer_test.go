package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
	"github.com/alanyoungcy/curvemarket/internal/engine"
	"github.com/alanyoungcy/curvemarket/internal/store/memory"
)

const testProgram = "Prog1111111111111111111111111111"

type fakeChain struct {
	sigs    []domain.SignatureInfo
	events  map[string]domain.ChainEvent
	listErr error

	listCalls  int
	eventCalls map[string]int
}

func (f *fakeChain) ListSignatures(ctx context.Context, programID string, limit int) ([]domain.SignatureInfo, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.sigs) > limit {
		return f.sigs[:limit], nil
	}
	return f.sigs, nil
}

func (f *fakeChain) GetEvent(ctx context.Context, signature string) (domain.ChainEvent, error) {
	if f.eventCalls == nil {
		f.eventCalls = make(map[string]int)
	}
	f.eventCalls[signature]++
	ev, ok := f.events[signature]
	if !ok {
		return domain.ChainEvent{}, domain.ErrChainUnavailable
	}
	return ev, nil
}

func newTestIndexer(t *testing.T, chain *fakeChain) (*Indexer, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, nil, logger)
	idx := New(chain, st, eng, nil, Config{ProgramID: testProgram}, logger)
	return idx, st
}

func seedActiveMarket(t *testing.T, st *memory.Store) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:          "mkt-1",
		Address:     "MktAddr111",
		Owner:       "CreatorWallet",
		Mint:        "Mint111",
		Escrow:      "Escrow111",
		TotalSupply: 1_000_000,
		Status:      domain.MarketStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.Markets().Create(context.Background(), m); err != nil {
		t.Fatalf("seed market: %v", err)
	}
	return m
}

func buyEvent(sig, wallet string, m domain.Market, amount int64, blockTime time.Time) domain.ChainEvent {
	return domain.ChainEvent{
		Signature: sig,
		BlockTime: blockTime,
		Instructions: []domain.Instruction{{
			ProgramID: testProgram,
			Accounts:  []string{wallet, m.Address, m.Mint, m.Escrow, "UserATA", "Sys111"},
		}},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 4, Mint: m.Mint, Owner: wallet, Amount: 0},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 4, Mint: m.Mint, Owner: wallet, Amount: amount},
		},
	}
}

func TestPollSettlesBuy(t *testing.T) {
	blockTime := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{{Signature: "sig-1", BlockTime: blockTime}},
	}
	idx, st := newTestIndexer(t, chain)
	m := seedActiveMarket(t, st)
	chain.events = map[string]domain.ChainEvent{
		"sig-1": buyEvent("sig-1", "WalletA", m, 250, blockTime),
	}

	if err := idx.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	tx, err := st.Transactions().GetBySignature(context.Background(), "sig-1")
	if err != nil {
		t.Fatalf("transaction not settled: %v", err)
	}
	if tx.Type != domain.TradeTypeBuy || tx.Amount != 250 || tx.Wallet != "WalletA" {
		t.Errorf("settled %+v", tx)
	}
	got, _ := st.Markets().GetByID(context.Background(), m.ID)
	if got.CirculatingSupply != 250 {
		t.Errorf("supply = %d, want 250", got.CirculatingSupply)
	}
}

func TestPollSkipsKnownSignatures(t *testing.T) {
	blockTime := time.Now().UTC()
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{{Signature: "sig-1", BlockTime: blockTime}},
	}
	idx, st := newTestIndexer(t, chain)
	m := seedActiveMarket(t, st)
	chain.events = map[string]domain.ChainEvent{
		"sig-1": buyEvent("sig-1", "WalletA", m, 100, blockTime),
	}

	ctx := context.Background()
	if err := idx.poll(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if err := idx.poll(ctx); err != nil {
		t.Fatalf("second poll: %v", err)
	}

	if chain.eventCalls["sig-1"] != 1 {
		t.Errorf("event fetched %d times, want 1", chain.eventCalls["sig-1"])
	}
	got, _ := st.Markets().GetByID(ctx, m.ID)
	if got.TradeCount != 1 {
		t.Errorf("trade count = %d, want 1", got.TradeCount)
	}
}

func TestPollSkipsFailedAndForeignEvents(t *testing.T) {
	blockTime := time.Now().UTC()
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{
			{Signature: "sig-failed", BlockTime: blockTime, Failed: true},
			{Signature: "sig-foreign", BlockTime: blockTime},
		},
	}
	idx, st := newTestIndexer(t, chain)
	seedActiveMarket(t, st)
	chain.events = map[string]domain.ChainEvent{
		"sig-foreign": {
			Signature: "sig-foreign",
			Instructions: []domain.Instruction{{
				ProgramID: "OtherProgram",
				Accounts:  []string{"a", "b", "c", "d", "e", "f"},
			}},
		},
	}

	if err := idx.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if chain.eventCalls["sig-failed"] != 0 {
		t.Errorf("failed signature was fetched")
	}
	if exists, _ := st.Transactions().Exists(context.Background(), "sig-foreign"); exists {
		t.Errorf("foreign event was settled")
	}
	// Both are final: the next poll must not refetch them.
	if err := idx.poll(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if chain.eventCalls["sig-foreign"] != 1 {
		t.Errorf("foreign event refetched")
	}
}

func TestUnregisteredMarketRetriesNextPoll(t *testing.T) {
	blockTime := time.Now().UTC()
	m := domain.Market{
		ID: "mkt-late", Address: "LateAddr", Owner: "Creator", Mint: "LateMint",
		Escrow: "LateEscrow", TotalSupply: 1_000_000, Status: domain.MarketStatusActive,
		CreatedAt: blockTime,
	}
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{{Signature: "sig-1", BlockTime: blockTime}},
		events: map[string]domain.ChainEvent{
			"sig-1": buyEvent("sig-1", "WalletA", m, 50, blockTime),
		},
	}
	idx, st := newTestIndexer(t, chain)

	ctx := context.Background()
	if err := idx.poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if exists, _ := st.Transactions().Exists(ctx, "sig-1"); exists {
		t.Fatal("settled against unregistered market")
	}

	// Market registers between polls; the signature must then settle.
	if err := st.Markets().Create(ctx, m); err != nil {
		t.Fatalf("register market: %v", err)
	}
	if err := idx.poll(ctx); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if exists, _ := st.Transactions().Exists(ctx, "sig-1"); !exists {
		t.Error("signature not settled after registration")
	}
}

func TestPendingMarketEventSettlesCreation(t *testing.T) {
	blockTime := time.Now().UTC()
	m := domain.Market{
		ID: "mkt-p", Address: "PendAddr", Owner: "Creator", Mint: "PendMint",
		Escrow: "PendEscrow", TotalSupply: 1_000_000, Status: domain.MarketStatusPending,
		CreatedAt: blockTime,
	}
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{{Signature: "sig-create", BlockTime: blockTime}},
		events: map[string]domain.ChainEvent{
			"sig-create": {
				Signature: "sig-create",
				BlockTime: blockTime,
				Instructions: []domain.Instruction{{
					ProgramID: testProgram,
					Accounts:  []string{"Creator", m.Address, m.Mint, m.Escrow, "Treasury", "Sys111"},
				}},
				// Creation mints the full supply to escrow.
				PostTokenBalances: []domain.TokenBalance{
					{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: m.TotalSupply},
				},
			},
		},
	}
	idx, st := newTestIndexer(t, chain)
	ctx := context.Background()
	if err := st.Markets().Create(ctx, m); err != nil {
		t.Fatalf("seed pending market: %v", err)
	}

	if err := idx.poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	got, _ := st.Markets().GetByID(ctx, m.ID)
	if got.Status != domain.MarketStatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	tx, err := st.Transactions().GetBySignature(ctx, "sig-create")
	if err != nil {
		t.Fatalf("creation not settled: %v", err)
	}
	if tx.Type != domain.TradeTypeCreateMarket {
		t.Errorf("type = %s", tx.Type)
	}
}

func TestTradePolledBeforeCreationDefersUntilActive(t *testing.T) {
	blockTime := time.Now().UTC()
	m := domain.Market{
		ID: "mkt-p2", Address: "PendAddr2", Owner: "Creator", Mint: "PendMint2",
		Escrow: "PendEscrow2", TotalSupply: 1_000_000, Status: domain.MarketStatusPending,
		CreatedAt: blockTime,
	}
	// Newest first: a buy confirmed right after the creation shows up ahead
	// of it in the signature list while the market is still pending.
	chain := &fakeChain{
		sigs: []domain.SignatureInfo{
			{Signature: "sig-buy", BlockTime: blockTime.Add(time.Second)},
			{Signature: "sig-create", BlockTime: blockTime},
		},
		events: map[string]domain.ChainEvent{
			"sig-buy": buyEvent("sig-buy", "WalletA", m, 250, blockTime.Add(time.Second)),
			"sig-create": {
				Signature: "sig-create",
				BlockTime: blockTime,
				Instructions: []domain.Instruction{{
					ProgramID: testProgram,
					Accounts:  []string{"Creator", m.Address, m.Mint, m.Escrow, "Treasury", "Sys111"},
				}},
				PostTokenBalances: []domain.TokenBalance{
					{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: m.TotalSupply},
				},
			},
		},
	}
	idx, st := newTestIndexer(t, chain)
	ctx := context.Background()
	if err := st.Markets().Create(ctx, m); err != nil {
		t.Fatalf("seed pending market: %v", err)
	}

	if err := idx.poll(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	got, _ := st.Markets().GetByID(ctx, m.ID)
	if got.Status != domain.MarketStatusActive {
		t.Fatalf("status = %s, want active after first poll", got.Status)
	}
	createTx, err := st.Transactions().GetBySignature(ctx, "sig-create")
	if err != nil {
		t.Fatalf("creation not settled: %v", err)
	}
	if createTx.Type != domain.TradeTypeCreateMarket {
		t.Errorf("creation settled as %s", createTx.Type)
	}
	if exists, _ := st.Transactions().Exists(ctx, "sig-buy"); exists {
		t.Fatal("buy settled against pending market")
	}

	// The buy was left unseen; the next poll settles it as a trade.
	if err := idx.poll(ctx); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	buyTx, err := st.Transactions().GetBySignature(ctx, "sig-buy")
	if err != nil {
		t.Fatalf("buy not settled after activation: %v", err)
	}
	if buyTx.Type != domain.TradeTypeBuy || buyTx.Amount != 250 {
		t.Errorf("settled %s/%d, want BUY/250", buyTx.Type, buyTx.Amount)
	}
	got, _ = st.Markets().GetByID(ctx, m.ID)
	if got.CirculatingSupply != 250 {
		t.Errorf("supply = %d, want 250", got.CirculatingSupply)
	}
}

func TestIsCreationEvent(t *testing.T) {
	m := domain.Market{Mint: "Mint111", Escrow: "Escrow111"}

	creation := domain.ChainEvent{
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: 1_000_000},
		},
	}
	if !isCreationEvent(creation, m) {
		t.Error("escrow-only mint not recognized as creation")
	}

	trade := domain.ChainEvent{
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: 1_000_000},
			{AccountIndex: 4, Mint: m.Mint, Owner: "WalletA", Amount: 0},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: 999_750},
			{AccountIndex: 4, Mint: m.Mint, Owner: "WalletA", Amount: 250},
		},
	}
	if isCreationEvent(trade, m) {
		t.Error("wallet-side balance treated as creation")
	}

	if isCreationEvent(domain.ChainEvent{}, m) {
		t.Error("event without mint balances treated as creation")
	}
}

func TestListFailureReportedAsPollError(t *testing.T) {
	chain := &fakeChain{listErr: domain.ErrChainUnavailable}
	idx, _ := newTestIndexer(t, chain)

	err := idx.poll(context.Background())
	if !errors.Is(err, domain.ErrChainUnavailable) {
		t.Errorf("err = %v, want ErrChainUnavailable", err)
	}
}

func TestParseTradeEscrowFallback(t *testing.T) {
	m := domain.Market{Mint: "Mint111", Escrow: "Escrow111"}

	// Only the escrow side visible: escrow gained 40, so the wallet sold 40.
	ev := domain.ChainEvent{
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: 100},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: m.Mint, Owner: m.Escrow, Amount: 140},
		},
	}
	typ, amount, err := parseTrade(ev, m, "WalletA")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != domain.TradeTypeSell || amount != 40 {
		t.Errorf("got %s/%d, want SELL/40", typ, amount)
	}
}

func TestParseTradeClosedAccount(t *testing.T) {
	m := domain.Market{Mint: "Mint111", Escrow: "Escrow111"}

	// Full exit closed the wallet's token account: pre only, no post entry.
	ev := domain.ChainEvent{
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 4, Mint: m.Mint, Owner: "WalletA", Amount: 75},
		},
	}
	typ, amount, err := parseTrade(ev, m, "WalletA")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != domain.TradeTypeSell || amount != 75 {
		t.Errorf("got %s/%d, want SELL/75", typ, amount)
	}
}

func TestParseTradeNoMovement(t *testing.T) {
	m := domain.Market{Mint: "Mint111", Escrow: "Escrow111"}
	ev := domain.ChainEvent{
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 4, Mint: m.Mint, Owner: "WalletA", Amount: 75},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 4, Mint: m.Mint, Owner: "WalletA", Amount: 75},
		},
	}
	if _, _, err := parseTrade(ev, m, "WalletA"); !errors.Is(err, domain.ErrMalformedEvent) {
		t.Errorf("err = %v, want ErrMalformedEvent", err)
	}
}
