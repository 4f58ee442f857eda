package domain

import "fmt"

// ContractState is the escrow contract's state enum, decoded by position
type ContractState uint64

const (
	ContractStateCreated ContractState = iota
	ContractStateFunded
	ContractStateActive
	ContractStateCompleted
	ContractStateCancelled
)

var contractStateNames = [...]string{"Created", "Funded", "Active", "Completed", "Cancelled"}

func (s ContractState) String() string {
	if s < ContractState(len(contractStateNames)) {
		return contractStateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint64(s))
}

// Known reports whether s is one of the declared states
func (s ContractState) Known() bool {
	return s < ContractState(len(contractStateNames))
}
