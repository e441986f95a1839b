// Command circuit-compile builds the resolution circuit artifacts for a list
// of slot counts, writes them to disk together with a manifest and optionally
// uploads them to an S3 compatible bucket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/sealbid-node/circuits"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types/params"
)

func main() {
	var destination string
	var force bool
	var bidders []int
	s3Config := NewDefaultS3Config()

	flag.IntSliceVar(&bidders, "bidders", []int{params.DefaultMaxBidders}, "slot counts to build artifacts for")
	flag.StringVar(&destination, "destination", "artifacts", "destination folder for the artifacts")
	flag.BoolVar(&force, "force", false, "run the setup even if the manifest already lists the circuit")

	flag.BoolVar(&s3Config.Enabled, "s3.enabled", false, "enable S3 uploads")
	flag.StringVar(&s3Config.HostBase, "s3.host-base", s3Config.HostBase, "S3 host base")
	flag.StringVar(&s3Config.AccessKey, "s3.access-key", "", "S3 access key")
	flag.StringVar(&s3Config.SecretKey, "s3.secret-key", "", "S3 secret key")
	flag.StringVar(&s3Config.Space, "s3.space", s3Config.Space, "S3 space (bucket name)")
	flag.StringVar(&s3Config.Bucket, "s3.bucket", s3Config.Bucket, "S3 bucket (folder name)")

	flag.Parse()
	log.Init(log.LogLevelDebug, "stdout", nil)

	slots, err := parseSlotCounts(bidders)
	if err != nil {
		log.Fatalf("invalid --bidders: %v", err)
	}

	ctx := context.Background()
	if err := TestS3Connection(ctx, s3Config); err != nil {
		log.Fatalf("S3 connection test failed: %v", err)
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		log.Fatalf("error creating destination folder: %v", err)
	}
	log.Infow("destination folder", "path", destination)

	manifest, err := readManifest(destination)
	if err != nil {
		log.Fatalf("error reading manifest: %v", err)
	}

	var createdFiles []string
	for _, n := range slots {
		files, err := buildArtifacts(destination, n, manifest, force)
		if err != nil {
			log.Fatalf("error building artifacts for %d slots: %v", n, err)
		}
		createdFiles = append(createdFiles, files...)
	}

	if err := tournament.WriteManifest(destination, manifest); err != nil {
		log.Fatalf("error writing manifest: %v", err)
	}
	createdFiles = append(createdFiles, filepath.Join(destination, tournament.ManifestFile))

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		log.Fatalf("error encoding manifest: %v", err)
	}
	fmt.Println(string(out))

	if err := UploadFiles(ctx, createdFiles, s3Config); err != nil {
		log.Fatalf("error uploading artifacts: %v", err)
	}
}

// buildArtifacts compiles the circuit for n slots and, when the manifest does
// not already hold a matching constraint system, runs the setup and stores
// the result. It returns the paths of the files written.
func buildArtifacts(dir string, n int, manifest tournament.Manifest, force bool) ([]string, error) {
	startTime := time.Now()
	log.Infow("compiling resolution circuit", "slots", n)
	compiled, err := circuits.Compile(params.ResolveCurve, tournament.Placeholder(n))
	if err != nil {
		return nil, err
	}
	ccsHash, err := circuits.HashConstraintSystem(compiled.ConstraintSystem())
	if err != nil {
		return nil, err
	}
	if !shouldRunSetup(ccsHash, manifest[n].ConstraintSystem, force) {
		log.Infow("circuit unchanged, skipping setup", "slots", n, "ccs", ccsHash)
		return nil, nil
	}

	a, err := circuits.Setup(params.ResolveCurve, tournament.Placeholder(n))
	if err != nil {
		return nil, err
	}
	hashes, err := a.Write(dir)
	if err != nil {
		return nil, err
	}
	manifest[n] = hashes
	log.Infow("resolution circuit ready",
		"slots", n,
		"constraints", a.ConstraintSystem().GetNbConstraints(),
		"elapsed", time.Since(startTime).String())

	return []string{
		filepath.Join(dir, hashes.ConstraintSystem+"."+circuits.ExtConstraintSystem),
		filepath.Join(dir, hashes.ProvingKey+"."+circuits.ExtProvingKey),
		filepath.Join(dir, hashes.VerifyingKey+"."+circuits.ExtVerifyingKey),
	}, nil
}

// readManifest returns the manifest stored in dir, or an empty one if there
// is none yet.
func readManifest(dir string) (tournament.Manifest, error) {
	manifest := tournament.Manifest{}
	data, err := os.ReadFile(filepath.Join(dir, tournament.ManifestFile))
	if os.IsNotExist(err) {
		return manifest, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// parseSlotCounts validates the requested slot counts and returns them
// sorted and deduplicated.
func parseSlotCounts(counts []int) ([]int, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("no slot counts")
	}
	out := slices.Clone(counts)
	for _, n := range out {
		if n < params.MinBidders || n > params.MaxBiddersLimit {
			return nil, fmt.Errorf("slot count %d out of range [%d, %d]", n, params.MinBidders, params.MaxBiddersLimit)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func shouldRunSetup(compiledHash, expectedHash string, force bool) bool {
	return force || compiledHash != expectedHash
}
