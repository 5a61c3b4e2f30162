package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bmmlabs/momentum/internal/domain"
)

func TestFeedClientGetPrice(t *testing.T) {
	var gotPath, gotAccept, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"asset":"nzdd","price":"60000000","timestamp":1742428800}`)
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL, "secret")
	quote, err := c.GetPrice(context.Background(), domain.Asset("nzdd"))
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if gotPath != "/prices/nzdd" {
		t.Errorf("request path = %q, want /prices/nzdd", gotPath)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept header = %q, want application/json", gotAccept)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization header = %q, want Bearer secret", gotAuth)
	}
	if quote.Asset != domain.Asset("nzdd") {
		t.Errorf("quote asset = %q, want nzdd", quote.Asset)
	}
	if quote.Price.Cmp(big.NewInt(60000000)) != 0 {
		t.Errorf("quote price = %s, want 60000000", quote.Price)
	}
	if got := quote.Timestamp.Unix(); got != 1742428800 {
		t.Errorf("quote timestamp = %d, want 1742428800", got)
	}
}

func TestFeedClientNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"asset":"nzdd","price":"1","timestamp":0}`)
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL, "")
	if _, err := c.GetPrice(context.Background(), domain.Asset("nzdd")); err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization header = %q, want empty", gotAuth)
	}
}

func TestFeedClientGetPriceErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unknown asset", http.StatusNotFound, `{"error":"not found"}`, domain.ErrPriceUnavailable},
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"malformed json", http.StatusOK, `{"price":`, nil},
		{"unparsable price", http.StatusOK, `{"asset":"nzdd","price":"twelve","timestamp":0}`, nil},
		{"zero price", http.StatusOK, `{"asset":"nzdd","price":"0","timestamp":0}`, domain.ErrPriceUnavailable},
		{"negative price", http.StatusOK, `{"asset":"nzdd","price":"-5","timestamp":0}`, domain.ErrPriceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewFeedClient(srv.URL, "")
			_, err := c.GetPrice(context.Background(), domain.Asset("nzdd"))
			if err == nil {
				t.Fatal("GetPrice() error = nil, want error")
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("GetPrice() error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}
