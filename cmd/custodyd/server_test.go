package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/native/sweeper"
	"custodyledger/native/token"
	"custodyledger/storage"
)

func testAddress(fill byte) crypto.Address {
	return crypto.MustAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func newTestServer(t *testing.T) (*httptest.Server, *state.Manager, *lottery.Engine, *sweepStatus) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	ledger := token.NewLedger()
	engine := lottery.NewEngine(lottery.DefaultProgram)
	engine.SetIssuer(ledger)
	engine.SetNowFunc(func() int64 { return 1000 })

	user, tokenAcct, mint := testAddress(0x01), testAddress(0x02), testAddress(0xA0)
	_, authority, err := lottery.MintAuthority(engine.Program())
	require.NoError(t, err)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if _, err := ledger.CreateMint(tx, mint, authority, 0); err != nil {
			return err
		}
		if _, err := ledger.OpenAccount(tx, tokenAcct, mint, user); err != nil {
			return err
		}
		if err := tx.Deposit(user, uint256.NewInt(10_000_000)); err != nil {
			return err
		}
		_, err := engine.Enter(tx, user, tokenAcct)
		return err
	}))

	status := &sweepStatus{}
	srv := httptest.NewServer(newRouter(manager, engine, status))
	t.Cleanup(srv.Close)
	return srv, manager, engine, status
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEntryLookup(t *testing.T) {
	srv, manager, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/entries/" + testAddress(0x01).String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body entryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, testAddress(0x02).String(), body.TokenAccount)
	entryAddr, _, err := lottery.EntryAddress(lottery.DefaultProgram, testAddress(0x01))
	require.NoError(t, err)
	require.Equal(t, entryAddr.String(), body.Address)
	require.Equal(t, entryAddr.Hex(), body.AddressHex)
	require.Len(t, body.AddressHex, 2+2*crypto.AddressLength)
	require.Equal(t, int64(1000), body.Timestamp)
	require.Equal(t, manager.Rent().MinimumBalance(lottery.EntrySize).Dec(), body.Balance)

	missing, err := http.Get(srv.URL + "/v1/entries/" + testAddress(0x09).String())
	require.NoError(t, err)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(srv.URL + "/v1/entries/garbage")
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSweepStatus(t *testing.T) {
	srv, _, _, status := newTestServer(t)
	status.record(&sweeper.SweepReport{Scanned: 4, Reclaimed: []crypto.Address{testAddress(0x05)}}, nil)

	resp, err := http.Get(srv.URL + "/v1/sweeps/last")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body sweepResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 4, body.Scanned)
	require.Equal(t, []string{testAddress(0x05).String()}, body.Reclaimed)
	require.NotEmpty(t, body.LastRun)
}
