package merkle

import "fmt"

type ProofStep struct {
	Side string `json:"side"` // "L" or "R"
	Hash string `json:"hash"`
}

type Proof struct {
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Path     []ProofStep `json:"path"`
}

// Prove returns the inclusion proof for the given record hash.
func (t *Tree) Prove(recordHash string) (Proof, error) {
	index := -1
	for i, h := range t.recordHashes {
		if h == recordHash {
			index = i
			break
		}
	}
	if index < 0 {
		return Proof{}, fmt.Errorf("merkle: record hash not in tree")
	}

	proof := Proof{
		LeafHash: leafHash(recordHash),
		Root:     t.root,
	}

	for _, level := range t.levels[:len(t.levels)-1] {
		siblings := level
		if len(siblings)%2 != 0 {
			siblings = append(siblings, siblings[len(siblings)-1])
		}

		if index%2 == 0 {
			proof.Path = append(proof.Path, ProofStep{Side: "R", Hash: siblings[index+1]})
		} else {
			proof.Path = append(proof.Path, ProofStep{Side: "L", Hash: siblings[index-1]})
		}
		index /= 2
	}

	return proof, nil
}

// Verify recomputes the root from the proof path and compares it against the
// expected root.
func Verify(proof Proof, expectedRoot string) bool {
	current := proof.LeafHash

	for _, step := range proof.Path {
		if step.Side == "L" {
			current = nodeHash(step.Hash, current)
		} else {
			current = nodeHash(current, step.Hash)
		}
	}

	return current == expectedRoot && proof.Root == expectedRoot
}
