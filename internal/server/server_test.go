package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

type fakeStore struct {
	codes []model.StockCode
}

func (s *fakeStore) Load() ([]model.StockCode, error) { return s.codes, nil }

func (s *fakeStore) Add(code model.StockCode) ([]model.StockCode, error) {
	for _, c := range s.codes {
		if c == code {
			return s.codes, nil
		}
	}
	s.codes = append(s.codes, code)
	return s.codes, nil
}

type fakeIngress struct {
	mu   sync.Mutex
	seen []model.StockCode
}

func (i *fakeIngress) Watchlist(codes []model.StockCode) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seen = append(i.seen, codes...)
}

func newTestMux(t *testing.T, store *fakeStore, ingress *fakeIngress) http.Handler {
	t.Helper()
	realtime := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := New(":0", realtime, store, ingress, zap.NewNop())
	return srv.http.Handler
}

func TestHealthzReturnsOK(t *testing.T) {
	mux := newTestMux(t, &fakeStore{}, &fakeIngress{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWatchlistGetListsCurrentCodes(t *testing.T) {
	mux := newTestMux(t, &fakeStore{codes: []model.StockCode{"000001"}}, &fakeIngress{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watchlist", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "000001")
}

func TestWatchlistPostAddsCodeAndNotifiesIngress(t *testing.T) {
	store := &fakeStore{}
	ingress := &fakeIngress{}
	mux := newTestMux(t, store, ingress)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/watchlist", strings.NewReader(`{"code":"600519"}`))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.StockCode{"600519"}, store.codes)
	assert.Equal(t, []model.StockCode{"600519"}, ingress.seen)
}

func TestWatchlistPostMissingCodeIsBadRequest(t *testing.T) {
	mux := newTestMux(t, &fakeStore{}, &fakeIngress{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/watchlist", strings.NewReader(`{}`))
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlistDeleteIsMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, &fakeStore{}, &fakeIngress{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/watchlist", nil)
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
