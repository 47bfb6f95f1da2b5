package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var allowListFixture = []common.Address{
	common.HexToAddress("0xC7905463C85C6398B4C146D5AcB02623Cda60E24"),
	common.HexToAddress("0xeaE7E225C6A0733f96C3b0691d61a3B62B8cB850"),
	common.HexToAddress("0x96d80c5189294e6e12Becb69f16591cd5cfc057C"),
	common.HexToAddress("0x96d80c5189294e6e12Becb69f16591cd5cfc057C"),
}

func TestProofVerifiesEveryLeaf(t *testing.T) {
	tree, err := NewAddressTree(allowListFixture)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	root := tree.Root()
	for i, addr := range allowListFixture {
		proof, err := tree.Proof(uint64(i))
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if len(proof) != 2 {
			t.Fatalf("expected depth 2 proof, got %d", len(proof))
		}
		if !VerifyProof(root, LeafHash(addr), proof, uint64(i)) {
			t.Fatalf("leaf %d failed verification", i)
		}
	}
}

func TestProofRejectsWrongIndexAndAccount(t *testing.T) {
	tree, err := NewAddressTree(allowListFixture)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if VerifyProof(tree.Root(), LeafHash(allowListFixture[0]), proof, 1) {
		t.Fatalf("expected wrong index to fail")
	}
	if VerifyProof(tree.Root(), LeafHash(allowListFixture[0]), proof, 4) {
		t.Fatalf("expected out-of-depth index to fail")
	}
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if VerifyProof(tree.Root(), LeafHash(stranger), proof, 0) {
		t.Fatalf("expected foreign account to fail")
	}
	if VerifyProof(common.Hash{}, LeafHash(allowListFixture[0]), proof, 0) {
		t.Fatalf("expected zero root to fail")
	}
}

func TestOddLeafCountDuplicatesLastNode(t *testing.T) {
	tree, err := NewAddressTree(allowListFixture[:3])
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if proof[0] != LeafHash(allowListFixture[2]) {
		t.Fatalf("expected lone leaf to be paired with itself")
	}
	if !VerifyProof(tree.Root(), LeafHash(allowListFixture[2]), proof, 2) {
		t.Fatalf("expected odd leaf to verify")
	}
	if _, err := tree.Proof(3); err == nil {
		t.Fatalf("expected out of range proof to fail")
	}
}

func TestSingleLeafTreeHasEmptyProof(t *testing.T) {
	tree, err := NewAddressTree(allowListFixture[:1])
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != LeafHash(allowListFixture[0]) {
		t.Fatalf("single leaf root should equal the leaf")
	}
	if !VerifyProof(tree.Root(), LeafHash(allowListFixture[0]), nil, 0) {
		t.Fatalf("expected empty proof to verify")
	}
	if _, err := NewTree(nil); err == nil {
		t.Fatalf("expected empty tree to fail")
	}
}

func TestModuleAddressIsStable(t *testing.T) {
	a := ModuleAddress("lending")
	b := ModuleAddress(" Lending ")
	if a != b {
		t.Fatalf("expected normalised module names to match")
	}
	if a == ModuleAddress("fund") {
		t.Fatalf("expected distinct modules to differ")
	}
	if _, ok := ParseAddress("not-an-address"); ok {
		t.Fatalf("expected parse failure")
	}
	if addr, ok := ParseAddress(allowListFixture[1].Hex()); !ok || addr != allowListFixture[1] {
		t.Fatalf("expected hex round trip")
	}
}
