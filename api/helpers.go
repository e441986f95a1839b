package api

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// decodeBody decodes the JSON body of r into out, writing ErrMalformedBody
// and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return false
	}
	return true
}

// auctionIDParam parses the auction ID URL parameter. The auctionID
// middleware already rejected malformed values.
func auctionIDParam(r *http.Request) types.AuctionID {
	id, _ := types.HexStringToAuctionID(chi.URLParam(r, AuctionURLParam))
	return id
}

// offsetParam parses the computation offset URL parameter.
func offsetParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, OffsetURLParam), 10, 64)
}

// CallbackSeedToUUID converts a callback seed string into a UUID. It uses
// the first 16 bytes of the SHA256 hash of the seed to create a UUID.
func CallbackSeedToUUID(seed string) (*uuid.UUID, error) {
	hash := sha256.Sum256([]byte(seed))
	u, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return nil, fmt.Errorf("failed to create callback UUID: %w", err)
	}
	return &u, nil
}

// CallbackURL returns the full URL the computation cluster must post its
// outputs to, given the base URL of the API and the callback seed.
func CallbackURL(baseURL, seed string) (string, error) {
	u, err := CallbackSeedToUUID(seed)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(baseURL, "/") + EndpointWithParam(CallbackEndpoint, CallbackUUIDURLParam, u.String()), nil
}
