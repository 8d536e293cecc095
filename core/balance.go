package core

import (
	"fmt"
	"math"
)

// MoveBalance debits amount from one account and credits it to another.
// A zero amount is a no-op. It fails without writing anything if the
// sender cannot cover the amount or the recipient would overflow.
func MoveBalance(state State, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("insufficient balance for %s: have %d need %d", from, sender.Balance, amount)
	}
	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s", to)
	}
	sender.Balance -= amount
	recipient.Balance += amount
	if err := state.SetAccount(sender); err != nil {
		return err
	}
	return state.SetAccount(recipient)
}
