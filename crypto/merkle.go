package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	errEmptyTree       = errors.New("merkle: no leaves")
	errIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// LeafHash returns the allow-list leaf for an account, keccak256(address).
func LeafHash(addr common.Address) common.Hash {
	return ethcrypto.Keccak256Hash(addr.Bytes())
}

func hashPair(left, right common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash(left.Bytes(), right.Bytes())
}

// VerifyProof walks the sibling path from leaf to root. The bit of index at
// each level selects the concatenation order: 0 means the running node is the
// left child. An index with bits left over after the path is consumed cannot
// belong to a tree of that depth and is rejected.
func VerifyProof(root, leaf common.Hash, proof []common.Hash, index uint64) bool {
	if root == (common.Hash{}) {
		return false
	}
	node := leaf
	for _, sibling := range proof {
		if index&1 == 0 {
			node = hashPair(node, sibling)
		} else {
			node = hashPair(sibling, node)
		}
		index >>= 1
	}
	return index == 0 && node == root
}

// Tree is an index-ordered keccak Merkle tree. Levels with an odd node count
// pair the last node with itself.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds a tree over the supplied leaves.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errEmptyTree
	}
	level := append([]common.Hash(nil), leaves...)
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(level[i], right))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

// NewAddressTree builds a tree whose leaves are LeafHash(addr) in order.
func NewAddressTree(addrs []common.Address) (*Tree, error) {
	leaves := make([]common.Hash, len(addrs))
	for i, addr := range addrs {
		leaves[i] = LeafHash(addr)
	}
	return NewTree(leaves)
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	if t == nil || len(t.levels) == 0 {
		return common.Hash{}
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for the leaf at index.
func (t *Tree) Proof(index uint64) ([]common.Hash, error) {
	if t == nil || len(t.levels) == 0 {
		return nil, errEmptyTree
	}
	if index >= uint64(len(t.levels[0])) {
		return nil, errIndexOutOfRange
	}
	proof := make([]common.Hash, 0, len(t.levels)-1)
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling >= uint64(len(level)) {
			sibling = pos
		}
		proof = append(proof, level[sibling])
		pos >>= 1
	}
	return proof, nil
}
