package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Info endpoint
	InfoEndpoint = "/info" // GET: cluster identity and resolution parameters

	// Auction endpoints
	AuctionURLParam           = "auctionId"                           // URL parameter for auction ID
	AuctionsEndpoint          = "/auctions"                           // GET: List auction ids, POST: Create auction
	AuctionEndpoint           = "/auctions/{" + AuctionURLParam + "}" // GET: Get auction state
	AuctionBidsEndpoint       = AuctionEndpoint + "/bids"             // POST: Place a sealed bid
	AuctionResolveEndpoint    = AuctionEndpoint + "/resolve"          // POST: Close the auction and dispatch its resolution
	AuctionSettlementEndpoint = AuctionEndpoint + "/settlement"       // GET: Get the settlement record

	// Computation endpoints
	OffsetURLParam      = "offset"                                 // URL parameter for computation offset
	ComputationEndpoint = "/computations/{" + OffsetURLParam + "}" // GET: Get computation handle

	// Callback endpoint, only known to the computation cluster
	CallbackUUIDURLParam = "uuid"                                      // Param for callback UUID
	CallbackEndpoint     = "/callbacks/{" + CallbackUUIDURLParam + "}" // POST: Deliver a signed computation output
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	// Always try to replace the placeholder, even if it's after the '?'
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
	InfoEndpoint,
}
