package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

func TestLoggingMiddleware(t *testing.T) {
	log.Init(log.LogLevelDebug, "stderr", nil)
	defer log.Init(log.LogLevelError, "stderr", nil)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
	wrapped := loggingMiddleware(16)(echo)

	for name, body := range map[string]string{
		"JSON object":          `{"authority": "0x00000000000000000000000000000000000000a1"}`,
		"JSON array":           `[1, 2, 3]`,
		"JSON with whitespace": `  {"key": "value"}`,
		"binary data":          "\x00\x01\x02\x03\x04",
		"plain text":           "Hello, World!",
		"empty body":           "",
	} {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)
			req := httptest.NewRequest(http.MethodPost, AuctionsEndpoint, bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)
			c.Assert(rec.Code, qt.Equals, http.StatusOK)
			// the handler still reads the full body
			c.Assert(rec.Body.String(), qt.Equals, body)
		})
	}
}

func TestLoggingConfigExclusions(t *testing.T) {
	log.Init(log.LogLevelDebug, "stderr", nil)
	defer log.Init(log.LogLevelError, "stderr", nil)

	config := LoggingConfig{
		MaxBodyLog:       100,
		ExcludedPrefixes: []string{"/callbacks/", "/health"},
	}
	for path, skip := range map[string]bool{
		"/callbacks/1234": true,
		"/health":         true,
		"/healthcheck":    true,
		"/auctions":       false,
		"/computations/1": false,
		"/callbacks":      false,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		qt.Assert(t, config.shouldSkipLogging(req), qt.Equals, skip, qt.Commentf("path %s", path))
	}

	// nothing is logged outside debug level
	log.Init(log.LogLevelInfo, "stderr", nil)
	req := httptest.NewRequest(http.MethodGet, "/auctions", nil)
	qt.Assert(t, config.shouldSkipLogging(req), qt.IsTrue)
}

func TestResponseWriterCapture(t *testing.T) {
	for name, tc := range map[string]struct {
		handler func(w http.ResponseWriter)
		status  int
	}{
		"WriteHeader before Write": {
			handler: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte("test"))
			},
			status: http.StatusCreated,
		},
		"Write without WriteHeader": {
			handler: func(w http.ResponseWriter) {
				_, _ = w.Write([]byte("test"))
			},
			status: http.StatusOK,
		},
		"multiple WriteHeader calls": {
			handler: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusConflict)
				w.WriteHeader(http.StatusAccepted)
			},
			status: http.StatusConflict,
		},
	} {
		t.Run(name, func(t *testing.T) {
			rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
			tc.handler(rw)
			qt.Assert(t, rw.statusCode, qt.Equals, tc.status)
		})
	}
}

func TestAuctionIDMiddleware(t *testing.T) {
	c := qt.New(t)
	router := chi.NewRouter()
	router.With(auctionIDMiddleware).Get(AuctionEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteJSON(w, auctionIDParam(r))
	})

	id := types.DeriveAuctionID([20]byte{1})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, auctionPath(AuctionEndpoint, id), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(strings.TrimSpace(rec.Body.String()), qt.Equals, `"`+id.String()+`"`)

	for _, bad := range []string{"zz", "0x1234", types.AuctionID{}.String()} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, EndpointWithParam(AuctionEndpoint, AuctionURLParam, bad), nil))
		c.Assert(rec.Code, qt.Equals, http.StatusBadRequest, qt.Commentf("auction id %s", bad))
	}
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := loggingMiddleware(512)(handler)
	jsonBody := `{"offset": 1, "publicKey": "0x01", "nonce": "0x02"}`

	b.Run("JSON body", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			req := httptest.NewRequest(http.MethodPost, "/auctions", strings.NewReader(jsonBody))
			wrapped.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
	b.Run("No body", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			req := httptest.NewRequest(http.MethodGet, "/auctions", nil)
			wrapped.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
