// Package merkle computes Merkle roots over the ordered entry hashes of the
// audit log. The build is an explicit iterative bottom-up fold (depth is
// log2 of the entry count), so realistic log sizes cannot exhaust the stack.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	leafPrefix = "mcx:audit:leaf:v1"
	nodePrefix = "mcx:audit:node:v1"
)

// Tree holds the levels of a computed Merkle tree, leaves first.
type Tree struct {
	Leaves []string
	Root   string
	Nodes  [][]string // levels of node hashes, bottom-up
}

// Build constructs a Merkle tree from the ordered entry hashes. An empty
// input yields an empty root.
func Build(entryHashes []string) *Tree {
	if len(entryHashes) == 0 {
		return &Tree{Root: ""}
	}

	leaves := make([]string, len(entryHashes))
	for i, h := range entryHashes {
		leaves[i] = leafHash(h)
	}

	tree := &Tree{Leaves: leaves}
	level := leaves
	for len(level) > 1 {
		tree.Nodes = append(tree.Nodes, level)
		level = nextLevel(level)
	}
	tree.Nodes = append(tree.Nodes, level)
	tree.Root = level[0]
	return tree
}

// Root is a convenience wrapper returning only the root hash.
func Root(entryHashes []string) string {
	return Build(entryHashes).Root
}

func leafHash(entryHash string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	// Entry hashes carry a "sha256:" prefix; hash the raw digest bytes.
	buf.Write(hexToBytes(strings.TrimPrefix(entryHash, "sha256:")))
	return sha256Hex(buf.Bytes())
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1]) // duplicate last
		count++
	}
	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
