package futures_usdt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "key", APISecret: "secret", BaseURL: srv.URL})
}

func TestSubmitOrderParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/order" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Errorf("missing api key header")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		checks := map[string]string{
			"symbol":           "BTCUSDT",
			"side":             "SELL",
			"type":             "MARKET",
			"quantity":         "0.012",
			"reduceOnly":       "true",
			"newClientOrderId": "BTCUSDT_close_cross",
		}
		for k, want := range checks {
			if got := r.PostForm.Get(k); got != want {
				t.Errorf("%s=%q, expected %q", k, got, want)
			}
		}
		if r.PostForm.Get("signature") == "" {
			t.Errorf("request not signed")
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"BTCUSDT_close_cross","status":"FILLED","avgPrice":"101.5","executedQty":"0.012"}`))
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:     "BTCUSDT",
		Side:       common.SideSell,
		Type:       common.OrderTypeMarket,
		Qty:        0.012,
		ClientID:   "BTCUSDT_close_cross",
		ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if res.ExchangeOrderID != "42" || res.Status != common.StatusFilled || res.AvgPrice != 101.5 {
		t.Fatalf("result=%+v, expected order 42 filled @101.5", res)
	}
}

func TestAPIErrorDecoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	_, err := c.GetPositions(context.Background(), "")
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, expected APIError", err)
	}
	if apiErr.Code != -2019 || apiErr.Temporary() {
		t.Fatalf("apiErr=%+v, expected non temporary -2019", apiErr)
	}
}

func TestGetPositionsAndAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			w.Write([]byte(`[{"symbol":"ETHUSDT","positionAmt":"-1.5","entryPrice":"2000","markPrice":"1990","unRealizedProfit":"15","notional":"-2985","updateTime":1700000000000}]`))
		case "/fapi/v2/account":
			w.Write([]byte(`{"totalWalletBalance":"1000.5","totalMarginBalance":"1015.5"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	pos, err := c.GetPositions(context.Background(), "")
	if err != nil {
		t.Fatalf("GetPositions error: %v", err)
	}
	if len(pos) != 1 || pos[0].Amount() != -1.5 || pos[0].Mark() != 1990 {
		t.Fatalf("positions=%+v, expected ETHUSDT -1.5 mark 1990", pos)
	}

	acc, err := c.GetAccountInfo(context.Background())
	if err != nil {
		t.Fatalf("GetAccountInfo error: %v", err)
	}
	if acc.WalletBalance() != 1000.5 || acc.MarginBalance() != 1015.5 {
		t.Fatalf("balances=%v/%v, expected 1000.5/1015.5", acc.WalletBalance(), acc.MarginBalance())
	}
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.GetAccountInfo(context.Background()); !errors.Is(err, errNoCredentials) {
		t.Fatalf("err=%v, expected errNoCredentials", err)
	}
}
