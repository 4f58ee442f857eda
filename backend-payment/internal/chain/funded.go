package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// FundedEvent is a decoded Funded(address indexed tenant, uint256 amount) log
type FundedEvent struct {
	Payer  string
	Amount *big.Int
}

// FindFunded returns the first Funded log emitted by contract. found is false
// when the receipt carries no such log.
func FindFunded(r *Receipt, contract string) (ev *FundedEvent, found bool, err error) {
	contract = strings.ToLower(contract)
	for _, l := range r.Logs {
		if strings.ToLower(l.Address) != contract {
			continue
		}
		if len(l.Topics) < 2 || strings.ToLower(l.Topics[0]) != FundedTopic {
			continue
		}

		payer, err := AddressFromTopic(l.Topics[1])
		if err != nil {
			return nil, true, fmt.Errorf("decode Funded payer: %w", err)
		}
		amount, err := DecodeUint256(l.Data)
		if err != nil {
			return nil, true, fmt.Errorf("decode Funded amount: %w", err)
		}
		return &FundedEvent{Payer: payer, Amount: amount}, true, nil
	}
	return nil, false, nil
}
