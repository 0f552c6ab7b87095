// Package repo implements C2: typed, indexed views over the kv store for
// chains, transactions, slices, blocks, and contract events. Every key
// follows the `<table>-<chain>-<secondaryIndex>-<id>` layout and range scans
// rely on lexicographic prefix bounds, so every numeric component that feeds
// a key must be rendered as a fixed-width, zero-padded decimal string.
package repo

import "fmt"

const heightWidth = 20 // enough digits for any uint64 height, zero-padded

func padHeight(h uint64) string {
	return fmt.Sprintf("%0*d", heightWidth, h)
}

func padUnix(t int64) string {
	if t < 0 {
		t = 0
	}
	return fmt.Sprintf("%0*d", heightWidth, t)
}

func txPrimaryKey(chain, hashHex string) []byte {
	return []byte(fmt.Sprintf("tx-%s-hash-%s", chain, hashHex))
}

func txByFromKey(chain, from string, created int64, hashHex string) []byte {
	return []byte(fmt.Sprintf("tx-%s-from-%s-%s-%s", chain, from, padUnix(created), hashHex))
}

func txByFromPrefix(chain, from string) []byte {
	return []byte(fmt.Sprintf("tx-%s-from-%s-", chain, from))
}

func txByToKey(chain, to string, created int64, hashHex string) []byte {
	return []byte(fmt.Sprintf("tx-%s-to-%s-%s-%s", chain, to, padUnix(created), hashHex))
}

func txByToPrefix(chain, to string) []byte {
	return []byte(fmt.Sprintf("tx-%s-to-%s-", chain, to))
}

func txByForeignKeyKey(chain, fk, hashHex string) []byte {
	return []byte(fmt.Sprintf("tx-%s-fk-%s-%s", chain, fk, hashHex))
}

func txByForeignKeyPrefix(chain, fk string) []byte {
	return []byte(fmt.Sprintf("tx-%s-fk-%s-", chain, fk))
}

func txLastKey(chain string) []byte {
	return []byte(fmt.Sprintf("tx-%s-last", chain))
}

func blockPrimaryKey(chain, hashHex string) []byte {
	return []byte(fmt.Sprintf("block-%s-hash-%s", chain, hashHex))
}

func blockByHeightKey(chain string, height uint64) []byte {
	return []byte(fmt.Sprintf("block-%s-height-%s", chain, padHeight(height)))
}

func blockByHeightPrefix(chain string) []byte {
	return []byte(fmt.Sprintf("block-%s-height-", chain))
}

func slicePrimaryKey(chain, hashHex string) []byte {
	return []byte(fmt.Sprintf("slice-%s-hash-%s", chain, hashHex))
}

func sliceByBlockKey(chain string, blockHeight, sliceHeight uint64, hashHex string) []byte {
	return []byte(fmt.Sprintf("slice-%s-block-%s-%s-%s", chain, padHeight(blockHeight), padHeight(sliceHeight), hashHex))
}

func sliceByBlockPrefix(chain string, blockHeight uint64) []byte {
	return []byte(fmt.Sprintf("slice-%s-block-%s-", chain, padHeight(blockHeight)))
}

func eventByContractEventKey(chain, contract, event, hashHex string, idx int) []byte {
	return []byte(fmt.Sprintf("event-%s-ce-%s-%s-%s-%04d", chain, contract, event, hashHex, idx))
}

func eventByContractEventPrefix(chain, contract, event string) []byte {
	return []byte(fmt.Sprintf("event-%s-ce-%s-%s-", chain, contract, event))
}

func eventByKeyValueKey(chain, contract, event, key, value, hashHex string, idx int) []byte {
	return []byte(fmt.Sprintf("event-%s-cekv-%s-%s-%s-%s-%s-%04d", chain, contract, event, key, value, hashHex, idx))
}

func eventByKeyValuePrefix(chain, contract, event, key, value string) []byte {
	return []byte(fmt.Sprintf("event-%s-cekv-%s-%s-%s-%s-", chain, contract, event, key, value))
}
