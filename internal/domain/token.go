package domain

// Token is the persisted metadata for an ERC-20 token. The store is the
// source of truth; the in-process cache holds an eventually-consistent
// snapshot of the resolved subset.
type Token struct {
	Address  string
	Name     string
	Symbol   string
	Decimals int
	Resolved bool
}
