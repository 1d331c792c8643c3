package asset

import "sync"

// TransferHook observes a completed balance movement on a Token. Tests use it
// to drive reentrant calls back into the vault during an outbound transfer.
type TransferHook func(from, to Address, amount uint64)

// Token is an in-memory Fungible. It is the test/demo stand-in for a real
// external asset; balances and allowances live in maps guarded by a mutex.
type Token struct {
	mu         sync.RWMutex
	id         string
	balances   map[Address]uint64
	allowances map[Address]map[Address]uint64
	hook       TransferHook
}

// NewToken creates an empty token with the given identity.
func NewToken(id string) *Token {
	return &Token{
		id:         id,
		balances:   make(map[Address]uint64),
		allowances: make(map[Address]map[Address]uint64),
	}
}

// ID returns the asset identity.
func (t *Token) ID() string { return t.id }

// SetTransferHook installs a hook invoked after every successful transfer,
// outside the token's lock so the hook may call back into the token or the
// vault.
func (t *Token) SetTransferHook(h TransferHook) {
	t.mu.Lock()
	t.hook = h
	t.mu.Unlock()
}

// Mint credits newly created units to addr. Test and demo setup only.
func (t *Token) Mint(addr Address, amount uint64) error {
	if addr.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	t.balances[addr] += amount
	t.mu.Unlock()
	return nil
}

// BalanceOf returns the held balance of addr.
func (t *Token) BalanceOf(addr Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[addr]
}

// Transfer moves amount from `from` to `to`. Fails atomically when the balance
// is insufficient.
func (t *Token) Transfer(from, to Address, amount uint64) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	if t.balances[from] < amount {
		t.mu.Unlock()
		return ErrInsufficientBalance
	}
	t.move(from, to, amount)
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(from, to, amount)
	}
	return nil
}

// TransferFrom moves amount from `from` to `to`, consuming spender's
// allowance. Fails atomically, touching neither balances nor allowance, when
// either the allowance or the balance is insufficient.
func (t *Token) TransferFrom(spender, from, to Address, amount uint64) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	allowed := t.allowances[from][spender]
	if spender != from && allowed < amount {
		t.mu.Unlock()
		return ErrInsufficientAllowance
	}
	if t.balances[from] < amount {
		t.mu.Unlock()
		return ErrInsufficientBalance
	}
	if spender != from {
		t.allowances[from][spender] = allowed - amount
	}
	t.move(from, to, amount)
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(from, to, amount)
	}
	return nil
}

// Approve sets spender's allowance over owner's balance, replacing any prior
// value.
func (t *Token) Approve(owner, spender Address, amount uint64) error {
	if spender.IsZero() {
		return ErrZeroAddress
	}
	t.mu.Lock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[Address]uint64)
	}
	t.allowances[owner][spender] = amount
	t.mu.Unlock()
	return nil
}

// Allowance returns the remaining allowance spender has over owner.
func (t *Token) Allowance(owner, spender Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[owner][spender]
}

// move transfers balance between accounts. Caller must hold t.mu.
func (t *Token) move(from, to Address, amount uint64) {
	t.balances[from] -= amount
	t.balances[to] += amount
	if t.balances[from] == 0 {
		delete(t.balances, from)
	}
}

// Balances returns a copy of all non-zero balances, for persistence.
func (t *Token) Balances() map[Address]uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Address]uint64, len(t.balances))
	for a, b := range t.balances {
		out[a] = b
	}
	return out
}

// Restore replaces all balances, for rehydration from persistence.
func (t *Token) Restore(balances map[Address]uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances = make(map[Address]uint64, len(balances))
	for a, b := range balances {
		if b > 0 {
			t.balances[a] = b
		}
	}
}
