package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/testutil"
)

func setupBalanceHandler(trades *testutil.MockTradeRepository, chain *testutil.MockChainSource) *BalanceHandler {
	logger := zap.NewNop()
	replayService := services.NewReplayService(trades, chain, logger)
	return NewBalanceHandler(replayService, logger)
}

func TestBalanceHandler_GetBalance(t *testing.T) {
	base := testutil.GenesisTime

	t.Run("reconstructs an asset balance at a height", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
		)

		handler := setupBalanceHandler(trades, testutil.NewMockChainSource())

		r := chi.NewRouter()
		r.Get("/addresses/{address}/balance", handler.GetBalance)

		url := fmt.Sprintf("/addresses/%s/balance?asset=%s&height=150", testutil.AliceAddress, testutil.AssetAlpha)
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		var response BalanceResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Balance != 100 {
			t.Errorf("expected balance 100, got %f", response.Balance)
		}
		if response.Height != 150 {
			t.Errorf("expected height 150, got %d", response.Height)
		}
	})

	t.Run("reconstructs the native balance at a time", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.Balances[testutil.AliceAddress] = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))

		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// A buy after the target spent 3 coins, so the earlier
			// balance was 13.
			testutil.CreateTestTrade(
				testutil.WithCoinAmount(testutil.Units(3)),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		handler := setupBalanceHandler(trades, chain)

		r := chi.NewRouter()
		r.Get("/addresses/{address}/balance", handler.GetBalance)

		url := fmt.Sprintf("/addresses/%s/balance?time=%d", testutil.AliceAddress, base.Unix())
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}

		var response BalanceResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Balance != 13 {
			t.Errorf("expected balance 13, got %f", response.Balance)
		}
	})

	t.Run("returns error for invalid address", func(t *testing.T) {
		handler := setupBalanceHandler(testutil.NewMockTradeRepository(), testutil.NewMockChainSource())

		r := chi.NewRouter()
		r.Get("/addresses/{address}/balance", handler.GetBalance)

		req := httptest.NewRequest("GET", "/addresses/nope/balance", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("rejects time together with height", func(t *testing.T) {
		handler := setupBalanceHandler(testutil.NewMockTradeRepository(), testutil.NewMockChainSource())

		r := chi.NewRouter()
		r.Get("/addresses/{address}/balance", handler.GetBalance)

		url := fmt.Sprintf("/addresses/%s/balance?asset=%s&height=10&time=100", testutil.AliceAddress, testutil.AssetAlpha)
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("rejects a native lookup by height", func(t *testing.T) {
		handler := setupBalanceHandler(testutil.NewMockTradeRepository(), testutil.NewMockChainSource())

		r := chi.NewRouter()
		r.Get("/addresses/{address}/balance", handler.GetBalance)

		req := httptest.NewRequest("GET", "/addresses/"+testutil.AliceAddress+"/balance?height=10", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}
