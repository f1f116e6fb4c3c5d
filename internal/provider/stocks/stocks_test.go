package stocks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

func chartBody(symbol string, price, volume float64, ts int64) string {
	b, _ := json.Marshal(map[string]any{
		"chart": map[string]any{
			"result": []map[string]any{{
				"meta": map[string]any{
					"symbol":              symbol,
					"regularMarketPrice":  price,
					"regularMarketVolume": volume,
					"regularMarketTime":   ts,
				},
			}},
			"error": nil,
		},
	})
	return string(b)
}

func TestResolve_Uppercases(t *testing.T) {
	a := New(Config{BaseURL: "http://unused", Timeout: time.Second}, nil)

	key, err := a.Resolve(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if key != "AAPL" {
		t.Errorf("key = %q, want AAPL", key)
	}

	if _, err := a.Resolve(context.Background(), "  "); !provider.IsNotFound(err) {
		t.Errorf("blank input: want NotFound, got %v", err)
	}
}

func TestFetchQuote_Normalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartBody("AAPL", 190.25, 52000000, 1740834000)))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	q, err := a.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote failed: %v", err)
	}

	if q.Source != model.SourceStock {
		t.Errorf("source = %s, want stock", q.Source)
	}
	if q.Value != 190.25 {
		t.Errorf("value = %v, want 190.25", q.Value)
	}
	if q.Volume == nil || *q.Volume != 52000000 {
		t.Errorf("volume = %v, want 52000000", q.Volume)
	}
	meta, ok := q.Meta.(model.StockMetadata)
	if !ok || meta.Provider != "yahoo-finance" {
		t.Errorf("metadata = %+v, want provider yahoo-finance", q.Meta)
	}
}

func TestNormalize_MissingPriceIsValidation(t *testing.T) {
	var resp chartResponse
	if err := json.Unmarshal([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL"}}],"error":null}}`), &resp); err != nil {
		t.Fatal(err)
	}
	_, err := Normalize("AAPL", resp)
	if !provider.IsValidation(err) {
		t.Errorf("want ValidationError, got %v", err)
	}
}

func TestNormalize_UpstreamNotFound(t *testing.T) {
	var resp chartResponse
	body := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	_, err := Normalize("ZZZZ", resp)
	if !provider.IsNotFound(err) {
		t.Errorf("want NotFound, got %v", err)
	}
}

func TestFetchHistory_OrderedSkipsNilCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{
			"meta":{"symbol":"AAPL","regularMarketPrice":190},
			"timestamp":[1740747600,1740834000,1740920400],
			"indicators":{"quote":[{"close":[188.5,null,190.25]}]}
		}],"error":null}}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	points, err := a.FetchHistory(context.Background(), "AAPL", 3)
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2 (nil close skipped)", len(points))
	}
	if !points[0].Timestamp.Before(points[1].Timestamp) {
		t.Error("points not ordered by timestamp ascending")
	}
	if points[1].Value != 190.25 {
		t.Errorf("last value = %v, want 190.25", points[1].Value)
	}
}

func TestOverview_SkipsFailedSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v8/finance/chart/BAD" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(chartBody("GOOD", 10, 100, 1740834000)))
	}))
	defer srv.Close()

	a := New(Config{
		BaseURL:         srv.URL,
		Timeout:         time.Second,
		OverviewSymbols: []string{"GOOD", "BAD"},
	}, nil)

	quotes, err := a.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	if quotes[0].Symbol != "GOOD" {
		t.Errorf("symbol = %s, want GOOD", quotes[0].Symbol)
	}
}
