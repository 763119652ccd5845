package chain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"
)

// Escrow contract events observed by the listener. The player is indexed;
// amount and timestamp travel in the log data.
const escrowABIJSON = `[
	{"type":"event","name":"Deposited","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]},
	{"type":"event","name":"FaucetClaimed","inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]}
]`

// Withdrawal contract read methods consumed by the authorization service.
const withdrawalABIJSON = `[
	{"type":"function","name":"getPlayerNonce","stateMutability":"view",
		"inputs":[{"name":"player","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getContractBalance","stateMutability":"view",
		"inputs":[],
		"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	escrowABI     abi.ABI
	withdrawalABI abi.ABI
)

func init() {
	var err error
	escrowABI, err = abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		panic("invalid escrow ABI: " + err.Error())
	}
	withdrawalABI, err = abi.JSON(strings.NewReader(withdrawalABIJSON))
	if err != nil {
		panic("invalid withdrawal ABI: " + err.Error())
	}
}

// WithdrawalContract binds a Client to one deployed withdrawal contract,
// exposing the reads the authorization service needs.
type WithdrawalContract struct {
	client  Client
	address string
}

// NewWithdrawalContract creates a withdrawal contract binding
func NewWithdrawalContract(client Client, address string) *WithdrawalContract {
	return &WithdrawalContract{client: client, address: address}
}

// PlayerNonce reads the player's current withdrawal nonce from the contract
func (w *WithdrawalContract) PlayerNonce(ctx context.Context, player string) (uint64, error) {
	return w.client.PlayerNonce(ctx, w.address, player)
}

// Balance reads the escrowed token balance held by the contract
func (w *WithdrawalContract) Balance(ctx context.Context) (decimal.Decimal, error) {
	return w.client.ContractBalance(ctx, w.address)
}
