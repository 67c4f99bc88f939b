package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testABI = `[
 {"type":"function","name":"initSold","stateMutability":"nonpayable",
  "inputs":[{"name":"prodId","type":"string"},{"name":"receiver","type":"address"}],"outputs":[]},
 {"type":"function","name":"newArticle","stateMutability":"nonpayable",
  "inputs":[{"name":"uid","type":"string"},{"name":"asin","type":"string"}],"outputs":[]},
 {"type":"function","name":"see","stateMutability":"view",
  "inputs":[{"name":"id","type":"string"}],
  "outputs":[{"name":"asin","type":"string"},{"name":"","type":"address"}]}
]`

const testContractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func newCredentials(t *testing.T) Credentials {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return Credentials{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
	}
}

func writeArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dep := filepath.Join(dir, "deployments")
	require.NoError(t, os.MkdirAll(filepath.Join(dep, "3"), 0o755))
	m := `{"3": {"ProdAuth": ["` + testContractAddr + `", "0x0000000000000000000000000000000000000001"]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dep, "map.json"), []byte(m), 0o644))
	build := `{"contractName":"ProdAuth","abi":` + testABI + `}`
	require.NoError(t, os.WriteFile(filepath.Join(dep, "3", testContractAddr+".json"), []byte(build), 0o644))
	return dir
}

func TestCredentialsKey(t *testing.T) {
	creds := newCredentials(t)
	_, addr, err := creds.Key()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(creds.Address), addr)

	prefixed := creds
	prefixed.PrivateKey = "0x" + creds.PrivateKey
	prefixed.Address = strings.ToLower(creds.Address)
	assert.NoError(t, prefixed.Validate())
}

func TestCredentialsRejected(t *testing.T) {
	creds := newCredentials(t)
	other := newCredentials(t)

	cases := map[string]Credentials{
		"mismatch":    {Address: other.Address, PrivateKey: creds.PrivateKey},
		"bad address": {Address: "0x1234", PrivateKey: creds.PrivateKey},
		"short key":   {Address: creds.Address, PrivateKey: "abcd"},
		"non hex key": {Address: creds.Address, PrivateKey: strings.Repeat("z", 64)},
		"empty":       {},
	}
	for name, c := range cases {
		err := c.Validate()
		assert.ErrorIs(t, err, ErrInvalidCredentials, name)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress(" " + testContractAddr + " ")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testContractAddr), a)

	_, err = ParseAddress("alice")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLoadArtifact(t *testing.T) {
	dir := writeArtifacts(t)
	art, err := LoadArtifact(dir, "3", "ProdAuth")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testContractAddr), art.Address)
	assert.Contains(t, art.ABI.Methods, MethodInitSold)
	assert.Contains(t, art.ABI.Methods, MethodSee)

	_, err = LoadArtifact(dir, "1", "ProdAuth")
	assert.Error(t, err)
	_, err = LoadArtifact(dir, "3", "Other")
	assert.Error(t, err)
	_, err = LoadArtifact(t.TempDir(), "3", "ProdAuth")
	assert.Error(t, err)
}

func TestLoadArtifactMissingABI(t *testing.T) {
	dir := writeArtifacts(t)
	file := filepath.Join(dir, "deployments", "3", testContractAddr+".json")
	require.NoError(t, os.WriteFile(file, []byte(`{"contractName":"ProdAuth"}`), 0o644))
	_, err := LoadArtifact(dir, "3", "ProdAuth")
	assert.ErrorContains(t, err, "no abi")
}

func TestCoerceArgs(t *testing.T) {
	art, err := LoadArtifact(writeArtifacts(t), "3", "ProdAuth")
	require.NoError(t, err)

	args := coerceArgs(art.ABI.Methods[MethodInitSold], []interface{}{"abc", testContractAddr})
	assert.Equal(t, "abc", args[0])
	assert.Equal(t, common.HexToAddress(testContractAddr), args[1])

	addr := common.HexToAddress(testContractAddr)
	args = coerceArgs(art.ABI.Methods[MethodNewArticle], []interface{}{"abc", addr})
	assert.Equal(t, addr.Hex(), args[1])

	// packing the coerced arguments must succeed
	_, err = art.ABI.Pack(MethodInitSold, coerceArgs(art.ABI.Methods[MethodInitSold], []interface{}{"abc", testContractAddr})...)
	assert.NoError(t, err)
}

func TestNamedOutputs(t *testing.T) {
	art, err := LoadArtifact(writeArtifacts(t), "3", "ProdAuth")
	require.NoError(t, err)
	out := namedOutputs(art.ABI.Methods[MethodSee], []interface{}{"B01", common.Address{}})
	assert.Equal(t, "B01", out["asin"])
	assert.Equal(t, common.Address{}, out["out1"])
}

func TestContractError(t *testing.T) {
	err := error(&ContractError{Method: MethodInitSold, TxHash: "0xabc", Err: ErrReverted})
	assert.True(t, IsContractError(errors.Wrap(err, "sale")))
	assert.ErrorIs(t, err, ErrReverted)
	assert.Equal(t, "contract initSold (tx 0xabc): transaction reverted", err.Error())
	assert.False(t, IsContractError(ErrInvalidCredentials))
}

type fakeBackend struct {
	calls []string
	args  [][]interface{}
	err   error
}

func (f *fakeBackend) Transact(_ context.Context, creds Credentials, method string, args ...interface{}) (*TxReceipt, error) {
	f.calls = append(f.calls, method)
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	return &TxReceipt{Method: method, TxHash: "0x01", From: creds.Address, Status: TxPending}, nil
}

func (f *fakeBackend) Call(_ context.Context, method string, args ...interface{}) (map[string]interface{}, error) {
	f.calls = append(f.calls, method)
	f.args = append(f.args, args)
	return map[string]interface{}{"asin": "B01"}, f.err
}

func (f *fakeBackend) ReceiptStatus(_ context.Context, txHash string) (*TxReceipt, error) {
	return &TxReceipt{TxHash: txHash, Status: TxConfirmed}, nil
}

func TestContractOperations(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	c := NewContract(fb)
	seller := newCredentials(t)
	buyer := newCredentials(t)

	_, err := c.RegisterSeller(ctx, seller, "acme")
	require.NoError(t, err)
	_, err = c.RegisterBuyer(ctx, buyer, "bob")
	require.NoError(t, err)
	_, err = c.RegisterProduct(ctx, seller, "41", "A")
	require.NoError(t, err)
	rc, err := c.InitiateSale(ctx, seller, "41", buyer.Address)
	require.NoError(t, err)
	assert.Equal(t, seller.Address, rc.From)
	_, err = c.VerifyPurchase(ctx, buyer, "41", seller.Address)
	require.NoError(t, err)
	rec, err := c.Inspect(ctx, "41")
	require.NoError(t, err)
	assert.Equal(t, "B01", rec["asin"])

	assert.Equal(t, []string{
		MethodRegisterSeller, MethodRegisterBuyer, MethodNewArticle,
		MethodInitSold, MethodVerifyPurchase, MethodSee,
	}, fb.calls)
	assert.Equal(t, []interface{}{"41", common.HexToAddress(buyer.Address)}, fb.args[3])

	st, err := c.ReceiptStatus(ctx, "0x02")
	require.NoError(t, err)
	assert.Equal(t, TxConfirmed, st.Status)
}

func TestContractValidatesBeforeSubmitting(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	c := NewContract(fb)
	seller := newCredentials(t)

	_, err := c.RegisterSeller(ctx, Credentials{Address: seller.Address}, "acme")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = c.InitiateSale(ctx, seller, "41", "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = c.VerifyPurchase(ctx, seller, "41", "")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = c.RegisterProduct(ctx, seller, " ", "A")
	assert.Error(t, err)
	assert.Empty(t, fb.calls)
}

func TestContractSurfacesBackendError(t *testing.T) {
	fb := &fakeBackend{err: &ContractError{Method: MethodInitSold, Err: errors.New("execution reverted: not owner")}}
	c := NewContract(fb)
	seller := newCredentials(t)
	_, err := c.InitiateSale(context.Background(), seller, "41", seller.Address)
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), "not owner")
}

// rpcServer answers every JSON-RPC request with a null result.
func rpcServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":null}`))
	}))
}

func TestReceiptStatusPending(t *testing.T) {
	srv := rpcServer(t)
	defer srv.Close()
	eth, err := ethclient.Dial(srv.URL)
	require.NoError(t, err)
	defer eth.Close()

	c := &Client{eth: eth, timeout: 5 * time.Second}
	rc, err := c.ReceiptStatus(context.Background(), "0x"+strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, TxPending, rc.Status)

	_, err = c.ReceiptStatus(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNoReceipt)
}

func TestDialNeedsArtifacts(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "http://127.0.0.1:1", ArtifactsDir: t.TempDir(), ChainID: "3", Contract: "ProdAuth"})
	assert.Error(t, err)
}

func TestUnavailableBackend(t *testing.T) {
	b := Unavailable(errors.New("connection refused"))
	c := NewContract(b)
	_, err := c.RegisterSeller(context.Background(), newCredentials(t), "acme")
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = c.Inspect(context.Background(), "41")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.ReceiptStatus(context.Background(), "0x01")
	assert.ErrorIs(t, err, ErrUnavailable)
}
