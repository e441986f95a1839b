package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/types"
	"github.com/vocdoni/sealbid-node/types/params"
)

func newNodeInfo(cluster common.Address, clusterKey types.PublicKey, defaultMaxBidders int) NodeInfo {
	offsets := make(map[int]uint32, params.MaxBiddersLimit-params.MinBidders+1)
	for n := params.MinBidders; n <= params.MaxBiddersLimit; n++ {
		offsets[n] = tournament.DefinitionOffset(n)
	}
	return NodeInfo{
		ClusterAddress:    cluster,
		ClusterPublicKey:  clusterKey,
		DefaultMaxBidders: defaultMaxBidders,
		MaxBiddersLimit:   params.MaxBiddersLimit,
		DefinitionOffsets: offsets,
	}
}

// nodeInfo returns the cluster identity and the resolution parameters.
// GET /info
func (a *API) nodeInfo(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, a.info)
}
