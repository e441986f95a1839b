package circuits

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// File extensions of the stored artifacts. Files are named after the
// SHA256 hash of their content.
const (
	ExtConstraintSystem = "ccs"
	ExtProvingKey       = "pk"
	ExtVerifyingKey     = "vk"
)

// ArtifactHashes identifies a set of stored artifacts by content hash.
type ArtifactHashes struct {
	ConstraintSystem string `json:"constraintSystem"`
	ProvingKey       string `json:"provingKey"`
	VerifyingKey     string `json:"verifyingKey"`
}

// Artifacts groups the compiled constraint system of a circuit with its
// groth16 keys. The keys are optional: an Artifacts value with only the
// constraint system can still check assignments with IsSolved.
type Artifacts struct {
	curve ecc.ID
	ccs   constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
}

// Compile compiles the placeholder circuit over the scalar field of curve.
func Compile(curve ecc.ID, placeholder frontend.Circuit) (*Artifacts, error) {
	ccs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, placeholder)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	return &Artifacts{curve: curve, ccs: ccs}, nil
}

// Setup compiles the placeholder circuit and runs the groth16 setup.
func Setup(curve ecc.ID, placeholder frontend.Circuit) (*Artifacts, error) {
	a, err := Compile(curve, placeholder)
	if err != nil {
		return nil, err
	}
	if a.pk, a.vk, err = groth16.Setup(a.ccs); err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return a, nil
}

// LoadArtifacts reads the artifacts identified by hashes from dir and checks
// their content hash. An empty proving or verifying key hash skips that key.
func LoadArtifacts(curve ecc.ID, dir string, hashes ArtifactHashes) (*Artifacts, error) {
	a := &Artifacts{curve: curve}
	a.ccs = groth16.NewCS(curve)
	if err := readFromFile(dir, hashes.ConstraintSystem, ExtConstraintSystem, a.ccs); err != nil {
		return nil, err
	}
	if hashes.ProvingKey != "" {
		a.pk = groth16.NewProvingKey(curve)
		if err := readFromFile(dir, hashes.ProvingKey, ExtProvingKey, a.pk); err != nil {
			return nil, err
		}
	}
	if hashes.VerifyingKey != "" {
		a.vk = groth16.NewVerifyingKey(curve)
		if err := readFromFile(dir, hashes.VerifyingKey, ExtVerifyingKey, a.vk); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Curve returns the curve the artifacts were built for.
func (a *Artifacts) Curve() ecc.ID {
	return a.curve
}

// ConstraintSystem returns the compiled constraint system.
func (a *Artifacts) ConstraintSystem() constraint.ConstraintSystem {
	return a.ccs
}

// VerifyingKey returns the groth16 verifying key, nil if not loaded.
func (a *Artifacts) VerifyingKey() groth16.VerifyingKey {
	return a.vk
}

// CanProve reports whether the proving key is available.
func (a *Artifacts) CanProve() bool {
	return a.pk != nil
}

// CanVerify reports whether the verifying key is available.
func (a *Artifacts) CanVerify() bool {
	return a.vk != nil
}

// IsSolved checks the full assignment against the constraint system without
// producing a proof.
func (a *Artifacts) IsSolved(assignment frontend.Circuit) error {
	w, err := frontend.NewWitness(assignment, a.curve.ScalarField())
	if err != nil {
		return fmt.Errorf("build witness: %w", err)
	}
	if err := a.ccs.IsSolved(w); err != nil {
		return fmt.Errorf("constraint system not solved: %w", err)
	}
	return nil
}

// Prove generates a groth16 proof for the full assignment and returns its
// serialized form.
func (a *Artifacts) Prove(assignment frontend.Circuit) (types.HexBytes, error) {
	if a.pk == nil {
		return nil, fmt.Errorf("proving key not loaded")
	}
	w, err := frontend.NewWitness(assignment, a.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(a.ccs, a.pk, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public part of assignment.
func (a *Artifacts) Verify(rawProof []byte, assignment frontend.Circuit) error {
	if a.vk == nil {
		return fmt.Errorf("verifying key not loaded")
	}
	proof := groth16.NewProof(a.curve)
	if _, err := proof.ReadFrom(bytes.NewReader(rawProof)); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	pub, err := frontend.NewWitness(assignment, a.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}
	if err := groth16.Verify(proof, a.vk, pub); err != nil {
		return fmt.Errorf("groth16 verify: %w", err)
	}
	return nil
}

// Write stores the artifacts in dir and returns their content hashes.
func (a *Artifacts) Write(dir string) (ArtifactHashes, error) {
	var hashes ArtifactHashes
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return hashes, fmt.Errorf("create artifacts dir: %w", err)
	}
	var err error
	if hashes.ConstraintSystem, err = writeToFile(dir, ExtConstraintSystem, a.ccs); err != nil {
		return hashes, err
	}
	if a.pk != nil {
		if hashes.ProvingKey, err = writeToFile(dir, ExtProvingKey, a.pk); err != nil {
			return hashes, err
		}
	}
	if a.vk != nil {
		if hashes.VerifyingKey, err = writeToFile(dir, ExtVerifyingKey, a.vk); err != nil {
			return hashes, err
		}
	}
	return hashes, nil
}

// writeToFile writes the content to a temp file in dir while hashing it,
// then renames it to <hash>.<ext>.
func writeToFile(dir, ext string, content io.WriterTo) (string, error) {
	hashFn := sha256.New()
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tempFilename := tempFile.Name()
	success := false
	defer func() {
		if err := tempFile.Close(); err != nil && !success {
			log.Warnw("failed to close temp file", "error", err)
		}
		if !success {
			if err := os.Remove(tempFilename); err != nil {
				log.Warnw("failed to remove temp file", "error", err, "path", tempFilename)
			}
		}
	}()

	if _, err := content.WriteTo(io.MultiWriter(hashFn, tempFile)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", ext, err)
	}
	hash := hex.EncodeToString(hashFn.Sum(nil))
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempFilename, filepath.Join(dir, hash+"."+ext)); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	log.Debugw("artifact written", "hash", hash, "ext", ext)
	return hash, nil
}

// readFromFile loads <hash>.<ext> from dir into dst after checking the
// content hash.
func readFromFile(dir, hash, ext string, dst io.ReaderFrom) error {
	content, err := os.ReadFile(filepath.Join(dir, hash+"."+ext))
	if err != nil {
		return fmt.Errorf("read %s artifact: %w", ext, err)
	}
	sum, err := HashBytesSHA256(content)
	if err != nil {
		return err
	}
	if sum != hash {
		return fmt.Errorf("%s artifact hash mismatch: got %s, want %s", ext, sum, hash)
	}
	if _, err := dst.ReadFrom(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("decode %s artifact: %w", ext, err)
	}
	return nil
}
