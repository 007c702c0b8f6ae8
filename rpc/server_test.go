package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/crypto"
	"crosslock/native/escrow"
	"crosslock/native/order"
	"crosslock/storage"
	"crosslock/storage/state"
)

const testNow = int64(1_700_000_000)

func newTestServer(t *testing.T) (*httptest.Server, *state.State) {
	t.Helper()
	st := state.NewState(storage.NewMemDB())

	book := order.NewBook()
	book.SetState(st)
	book.SetNowFunc(func() int64 { return testNow })

	registry := escrow.NewRegistry()
	registry.SetState(st)
	registry.SetLedger(st)
	registry.SetNowFunc(func() int64 { return testNow })

	server := NewServer(book, registry, nil, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp
}

func signedOrderRequest(t *testing.T) (submitOrderRequest, [20]byte) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var maker [20]byte
	copy(maker[:], ethcrypto.PubkeyToAddress(key.PublicKey).Bytes())

	o := &order.Order{
		Salt:         1,
		Maker:        maker,
		MakerAsset:   "ATOM",
		TakerAsset:   "OSMO",
		MakingAmount: big.NewInt(1000),
		TakingAmount: big.NewInt(3000),
		Expiration:   testNow + 3600,
	}
	hash := o.Hash()
	sig, err := ethcrypto.Sign(hash[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return submitOrderRequest{
		Order: orderPayload{
			Salt:         o.Salt,
			Maker:        hex.EncodeToString(maker[:]),
			MakerAsset:   o.MakerAsset,
			TakerAsset:   o.TakerAsset,
			MakingAmount: "1000",
			TakingAmount: "3000",
			Expiration:   o.Expiration,
		},
		Signature: hex.EncodeToString(sig),
	}, maker
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := signedOrderRequest(t)

	resp, body := postJSON(t, ts.URL+"/v1/orders", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", resp.StatusCode, body)
	}
	var created orderResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if created.Hash == "" {
		t.Fatalf("submit response missing hash")
	}

	var remaining remainingResponse
	getJSON(t, ts.URL+"/v1/orders/"+created.Hash+"/remaining", &remaining)
	if remaining.Remaining != "1000" {
		t.Fatalf("remaining = %s, want 1000", remaining.Remaining)
	}

	taker := hex.EncodeToString(bytes.Repeat([]byte{0x11}, 20))
	resp, body = postJSON(t, ts.URL+"/v1/orders/"+created.Hash+"/fill", fillOrderRequest{
		Taker:  taker,
		Amount: "1000",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fill status = %d, body %s", resp.StatusCode, body)
	}
	var fill fillOrderResponse
	if err := json.Unmarshal(body, &fill); err != nil {
		t.Fatalf("decode fill response: %v", err)
	}
	if fill.TakingAmount != "3000" || fill.Remaining != "0" {
		t.Fatalf("fill = %+v, want taking 3000 remaining 0", fill)
	}

	// A second fill conflicts.
	resp, _ = postJSON(t, ts.URL+"/v1/orders/"+created.Hash+"/fill", fillOrderRequest{
		Taker:  taker,
		Amount: "1000",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double fill status = %d, want 409", resp.StatusCode)
	}
}

func TestCancelRequiresMakerOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	req, maker := signedOrderRequest(t)

	resp, body := postJSON(t, ts.URL+"/v1/orders", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", resp.StatusCode, body)
	}
	var created orderResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}

	stranger := hex.EncodeToString(bytes.Repeat([]byte{0x22}, 20))
	resp, _ = postJSON(t, ts.URL+"/v1/orders/"+created.Hash+"/cancel", cancelOrderRequest{Maker: stranger})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign cancel status = %d, want 403", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/v1/orders/"+created.Hash+"/cancel", cancelOrderRequest{Maker: hex.EncodeToString(maker[:])})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("maker cancel status = %d, want 200", resp.StatusCode)
	}
}

func TestEscrowLifecycleOverHTTP(t *testing.T) {
	ts, st := newTestServer(t)

	taker := bytes.Repeat([]byte{0x02}, 20)
	var takerAddr [20]byte
	copy(takerAddr[:], taker)
	if err := st.Mint(takerAddr, "ATOM", big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	secret := []byte("the-escrow-secret")
	hashlock := escrow.Hashlock(secret)
	createReq := createEscrowRequest{
		Immutables: immutablesPayload{
			OrderHash:     hex.EncodeToString(bytes.Repeat([]byte{0x42}, 32)),
			Hashlock:      hex.EncodeToString(hashlock[:]),
			Maker:         hex.EncodeToString(bytes.Repeat([]byte{0x01}, 20)),
			Taker:         hex.EncodeToString(taker),
			Token:         "ATOM",
			Amount:        "1000",
			SafetyDeposit: "50",
			Leg:           "source",
			Timelocks: timelocksPayload{
				DeployedAt:              testNow,
				WithdrawalStart:         testNow - 1000, // already withdrawable
				PublicWithdrawalStart:   testNow + 1000,
				CancellationStart:       testNow + 2000,
				PublicCancellationStart: testNow + 3000,
			},
		},
	}

	resp, body := postJSON(t, ts.URL+"/v1/escrows", createReq)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var created escrowResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	resp, body = postJSON(t, ts.URL+"/v1/escrows/"+created.ID+"/fund", fundEscrowRequest{
		From: hex.EncodeToString(taker),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fund status = %d, body %s", resp.StatusCode, body)
	}

	var status escrowStatusResponse
	getJSON(t, ts.URL+"/v1/escrows/"+created.ID+"/status", &status)
	if status.Status != "funded" {
		t.Fatalf("status = %s, want funded", status.Status)
	}

	// Wrong secret is a bad request; the right one releases the funds.
	resp, _ = postJSON(t, ts.URL+"/v1/escrows/"+created.ID+"/withdraw", withdrawEscrowRequest{
		Caller: hex.EncodeToString(taker),
		Secret: hex.EncodeToString([]byte("wrong")),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong secret status = %d, want 400", resp.StatusCode)
	}
	resp, body = postJSON(t, ts.URL+"/v1/escrows/"+created.ID+"/withdraw", withdrawEscrowRequest{
		Caller: hex.EncodeToString(taker),
		Secret: hex.EncodeToString(secret),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("withdraw status = %d, body %s", resp.StatusCode, body)
	}

	getJSON(t, ts.URL+"/v1/escrows/"+created.ID+"/status", &status)
	if status.Status != "withdrawn" {
		t.Fatalf("status = %s, want withdrawn", status.Status)
	}
}

func TestPlanTimelocksOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/v1/timelocks/plan", planTimelocksRequest{DeployedAt: testNow})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan status = %d, body %s", resp.StatusCode, body)
	}
	var plan planTimelocksResponse
	if err := json.Unmarshal(body, &plan); err != nil {
		t.Fatalf("decode plan response: %v", err)
	}
	if !plan.OK {
		t.Fatalf("default plan invalid: %v", plan.Violations)
	}
	if plan.Source.CancellationStart != testNow+10800 {
		t.Fatalf("source cancellation = %d, want deployedAt+10800", plan.Source.CancellationStart)
	}
}

func TestParseAddressAcceptsHexAndBech32(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5A}, 20)
	var want [20]byte
	copy(want[:], raw)

	fromHex, err := parseAddress(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != want {
		t.Fatalf("hex address mismatch")
	}

	encoded := crypto.NewAddress(crypto.AccountPrefix, raw).String()
	fromBech, err := parseAddress(encoded)
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if fromBech != want {
		t.Fatalf("bech32 address mismatch")
	}

	if _, err := parseAddress("zz"); err == nil {
		t.Fatalf("garbage address must fail")
	}
}

func TestUnknownOrderIs404(t *testing.T) {
	ts, _ := newTestServer(t)
	unknown := hex.EncodeToString(bytes.Repeat([]byte{0xEE}, 32))
	resp := getJSON(t, fmt.Sprintf("%s/v1/orders/%s", ts.URL, unknown), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown order status = %d, want 404", resp.StatusCode)
	}
}
