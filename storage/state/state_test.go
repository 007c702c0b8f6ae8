package state

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"crosslock/native/escrow"
	"crosslock/native/order"
	"crosslock/storage"
)

func newTestState() *State {
	return NewState(storage.NewMemDB())
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func TestOrderRoundTrip(t *testing.T) {
	st := newTestState()
	o := &order.Order{
		Salt:         7,
		Maker:        testAddress(0x01),
		MakerAsset:   "ATOM",
		TakerAsset:   "OSMO",
		MakingAmount: big.NewInt(1000),
		TakingAmount: big.NewInt(3000),
		Expiration:   1_700_003_600,
		Traits:       order.TraitAllowPartialFills | order.TraitAllowMultipleFills,
		CreatedAt:    1_700_000_000,
	}
	hash := o.Hash()

	if _, ok, err := st.OrderGet(hash); err != nil || ok {
		t.Fatalf("missing order: ok=%v err=%v", ok, err)
	}
	if err := st.OrderPut(o); err != nil {
		t.Fatalf("OrderPut: %v", err)
	}
	loaded, ok, err := st.OrderGet(hash)
	if err != nil || !ok {
		t.Fatalf("OrderGet: ok=%v err=%v", ok, err)
	}
	if loaded.Hash() != hash {
		t.Fatalf("round trip changed the order hash")
	}
	if loaded.MakingAmount.Cmp(o.MakingAmount) != 0 {
		t.Fatalf("making amount = %s, want %s", loaded.MakingAmount, o.MakingAmount)
	}

	list, err := st.OrderList()
	if err != nil {
		t.Fatalf("OrderList: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("OrderList = %d entries, want 1", len(list))
	}
}

func TestInvalidatorRoundTrip(t *testing.T) {
	st := newTestState()
	signer := testAddress(0x02)

	if _, ok, err := st.BitInvalidatorGet(signer, 0); err != nil || ok {
		t.Fatalf("missing word: ok=%v err=%v", ok, err)
	}
	word := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	if err := st.BitInvalidatorPut(signer, 0, word); err != nil {
		t.Fatalf("BitInvalidatorPut: %v", err)
	}
	loaded, ok, err := st.BitInvalidatorGet(signer, 0)
	if err != nil || !ok {
		t.Fatalf("BitInvalidatorGet: ok=%v err=%v", ok, err)
	}
	if !loaded.Eq(word) {
		t.Fatalf("word round trip mismatch")
	}
	// Slots are independent.
	if _, ok, _ := st.BitInvalidatorGet(signer, 1); ok {
		t.Fatalf("slot 1 should be empty")
	}

	var hash [32]byte
	hash[0] = 0x10
	if err := st.RemainingPut(signer, hash, big.NewInt(750)); err != nil {
		t.Fatalf("RemainingPut: %v", err)
	}
	remaining, ok, err := st.RemainingGet(signer, hash)
	if err != nil || !ok {
		t.Fatalf("RemainingGet: ok=%v err=%v", ok, err)
	}
	if remaining.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("remaining = %s, want 750", remaining)
	}
	// Zero is a stored value, distinct from missing.
	if err := st.RemainingPut(signer, hash, big.NewInt(0)); err != nil {
		t.Fatalf("RemainingPut(0): %v", err)
	}
	remaining, ok, err = st.RemainingGet(signer, hash)
	if err != nil || !ok {
		t.Fatalf("RemainingGet after zero: ok=%v err=%v", ok, err)
	}
	if remaining.Sign() != 0 {
		t.Fatalf("remaining = %s, want 0", remaining)
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	st := newTestState()
	esc := &escrow.Escrow{
		Immutables: escrow.Immutables{
			Hashlock:      escrow.Hashlock([]byte("secret")),
			Maker:         testAddress(0x03),
			Taker:         testAddress(0x04),
			Token:         "ATOM",
			Amount:        big.NewInt(500),
			SafetyDeposit: big.NewInt(25),
			Leg:           escrow.LegSource,
			Timelocks: escrow.Timelocks{
				DeployedAt:              10_000,
				WithdrawalStart:         11_000,
				PublicWithdrawalStart:   12_000,
				CancellationStart:       13_000,
				PublicCancellationStart: 14_000,
			},
		},
		Depositor: testAddress(0x04),
		State:     escrow.StateFunded,
		CreatedAt: 10_000,
		UpdatedAt: 10_500,
	}
	esc.ID = esc.Immutables.ID()

	if err := st.EscrowPut(esc); err != nil {
		t.Fatalf("EscrowPut: %v", err)
	}
	loaded, ok, err := st.EscrowGet(esc.ID)
	if err != nil || !ok {
		t.Fatalf("EscrowGet: ok=%v err=%v", ok, err)
	}
	if loaded.State != escrow.StateFunded {
		t.Fatalf("state = %s, want funded", loaded.State)
	}
	if loaded.Immutables.ID() != esc.ID {
		t.Fatalf("round trip changed the escrow identity")
	}

	list, err := st.EscrowList()
	if err != nil {
		t.Fatalf("EscrowList: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("EscrowList = %d entries, want 1", len(list))
	}
}

func TestVaultAddressIsDeterministic(t *testing.T) {
	st := newTestState()
	first, err := st.EscrowVaultAddress("ATOM")
	if err != nil {
		t.Fatalf("EscrowVaultAddress: %v", err)
	}
	second, err := st.EscrowVaultAddress("ATOM")
	if err != nil {
		t.Fatalf("EscrowVaultAddress: %v", err)
	}
	if first != second {
		t.Fatalf("vault address must be stable per token")
	}
	other, err := st.EscrowVaultAddress("OSMO")
	if err != nil {
		t.Fatalf("EscrowVaultAddress: %v", err)
	}
	if other == first {
		t.Fatalf("tokens must map to distinct vaults")
	}
	if _, err := st.EscrowVaultAddress(""); err == nil {
		t.Fatalf("empty token must fail")
	}
}

func TestTransferMovesBalances(t *testing.T) {
	st := newTestState()
	alice := testAddress(0x05)
	bob := testAddress(0x06)

	if err := st.Mint(alice, "ATOM", big.NewInt(1000)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := st.Transfer(alice, bob, "ATOM", big.NewInt(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	aliceBal, _ := st.BalanceOf(alice, "ATOM")
	bobBal, _ := st.BalanceOf(bob, "ATOM")
	if aliceBal.Cmp(big.NewInt(600)) != 0 || bobBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("balances = %s/%s, want 600/400", aliceBal, bobBal)
	}

	if err := st.Transfer(alice, bob, "ATOM", big.NewInt(601)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientBalance", err)
	}
	// Failed transfer moved nothing.
	aliceBal, _ = st.BalanceOf(alice, "ATOM")
	if aliceBal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("balance after failed transfer = %s, want 600", aliceBal)
	}

	// Self-transfers and zero amounts are no-ops.
	if err := st.Transfer(alice, alice, "ATOM", big.NewInt(100)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if err := st.Transfer(alice, bob, "ATOM", big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
}
