package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
	"github.com/vocdoni/sealbid-node/types/params"
	"golang.org/x/sync/errgroup"
)

func (c *Cluster) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range c.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case req := <-c.queue:
					start := time.Now()
					out := c.Execute(req)
					log.Debugw("computation executed",
						"worker", i,
						"offset", req.Offset,
						"failure", out.Failure,
						"took", time.Since(start).String())
					c.deliver(ctx, out)
				}
			}
		})
	}
	return g.Wait()
}

// deliver retries transient callback failures.
func (c *Cluster) deliver(ctx context.Context, out *types.SignedOutput) {
	var err error
	for attempt := range callbackRetries {
		if err = c.callback.Deliver(ctx, out); err == nil {
			return
		}
		if errors.Is(err, ErrCallbackRejected) || ctx.Err() != nil {
			break
		}
		log.Debugw("retrying callback", "offset", out.Offset, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(callbackBackoff << attempt):
		}
	}
	log.Warnw("callback not delivered", "offset", out.Offset, "error", err)
}

// Execute runs one request synchronously and returns its signed output.
// Execution failures are reported inside the output, never as an error.
func (c *Cluster) Execute(req *types.ComputationRequest) *types.SignedOutput {
	out := &types.SignedOutput{
		Offset:           req.Offset,
		DefinitionOffset: req.DefinitionOffset,
		InputsHash:       req.InputsHash(),
	}
	if err := c.compute(req, out); err != nil {
		log.Warnw("computation failed", "offset", req.Offset, "error", err)
		out.Failure = err.Error()
		out.Fields = [params.ResultFields]types.OutputField{}
		out.Encrypted = [params.ResultFields]types.Ciphertext{}
		out.ResultNonce = types.Nonce{}
		out.BidsCommitment = nil
		out.Proof = nil
	}
	sig, err := c.signer.SignBytes(out.SigningPayload())
	if err != nil {
		// an unsigned output is rejected by the settler, which aborts
		log.Errorw(err, "failed to sign computation output")
	}
	out.Signature = sig
	return out
}

func (c *Cluster) compute(req *types.ComputationRequest, out *types.SignedOutput) error {
	enc, bids, err := dispatcher.ParseArguments(req.Arguments)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if want := tournament.DefinitionOffset(len(bids)); req.DefinitionOffset != want {
		return fmt.Errorf("unknown computation definition %d for %d slots", req.DefinitionOffset, len(bids))
	}
	cipher, err := c.keys.Cipher(enc.PublicKey)
	if err != nil {
		return err
	}
	values, rejected, err := cipher.OpenBids(bids, enc.Nonce)
	if err != nil {
		return fmt.Errorf("decrypt bids: %w", err)
	}
	if len(rejected) > 0 {
		log.Warnw("undecryptable bids counted as zero", "offset", req.Offset, "slots", rejected)
	}
	index, value := tournament.Max(values)

	if c.artifacts != nil {
		a, err := c.artifacts.Get(len(values))
		if err != nil {
			return err
		}
		blinding, err := tournament.RandomBlinding()
		if err != nil {
			return err
		}
		assignment := tournament.Assignment(values, blinding)
		if err := a.IsSolved(assignment); err != nil {
			return err
		}
		out.BidsCommitment = tournament.Commitment(blinding, values)
		if c.prove {
			if out.Proof, err = a.Prove(assignment); err != nil {
				return err
			}
		}
	}

	if out.Encrypted, out.ResultNonce, err = cipher.SealResult(index, value, enc.Nonce); err != nil {
		return fmt.Errorf("seal result: %w", err)
	}
	out.Fields[0] = types.OutputFieldFromUint64(index)
	out.Fields[1] = types.OutputFieldFromUint64(value)
	return nil
}
