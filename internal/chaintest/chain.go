// Package chaintest provides an in-memory stand-in for the voting contracts
// for use in tests. A Chain answers eth_call and receipt lookups like an RPC
// endpoint and accepts transactions like a wallet, decoding calldata with the
// same ABIs the client uses.
package chaintest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrReverted       = errors.New("execution reverted")
	ErrUnknownAddress = errors.New("no contract at address")
	ErrUnavailable    = errors.New("endpoint unavailable")
)

// Account is the address the Chain reports as its connected wallet.
var Account = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// Poll is the simulated state of one poll.
type Poll struct {
	Title     string
	Options   []string
	Creator   common.Address
	EndTime   int64
	Active    bool
	Decrypted bool
	Results   []uint64
	Voters    map[common.Address]bool
}

// Contract is one simulated deployment.
type Contract struct {
	Address      common.Address
	ABI          *abi.ABI
	Confidential bool
	Polls        []*Poll

	nextRequestID int64
}

// Chain simulates both deployments plus the transaction pool.
type Chain struct {
	mu        sync.Mutex
	chainID   *big.Int
	contracts map[common.Address]*Contract
	receipts  map[common.Hash]*pendingReceipt
	nonce     uint64
	block     uint64
	now       func() time.Time

	// ReceiptDelay is the number of receipt lookups answered with
	// ethereum.NotFound before a sent transaction's receipt appears.
	ReceiptDelay int

	// FailReads makes the next FailReads contract calls fail as if the
	// endpoint were unreachable.
	FailReads int

	// DropDecryptionEvent makes requestDecryption succeed without emitting
	// DecryptionRequested.
	DropDecryptionEvent bool

	// RevertMethods makes transactions calling these methods mine with a
	// failed status.
	RevertMethods map[string]bool

	// OnDecryptionRequested runs after a requestDecryption transaction is
	// applied, outside the chain lock.
	OnDecryptionRequested func(contract common.Address, pollID, requestID *big.Int)

	calls map[string]int
}

type pendingReceipt struct {
	receipt *types.Receipt
	lookups int
}

// New returns an empty Chain with the given chain id.
func New(chainID int64) *Chain {
	return &Chain{
		chainID:   big.NewInt(chainID),
		contracts: make(map[common.Address]*Contract),
		receipts:  make(map[common.Hash]*pendingReceipt),
		now:       time.Now,
		calls:     make(map[string]int),
	}
}

// Deploy registers a contract at address using contractABI.
func (c *Chain) Deploy(address common.Address, contractABI *abi.ABI, confidential bool) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()

	contract := &Contract{Address: address, ABI: contractABI, Confidential: confidential}
	c.contracts[address] = contract
	return contract
}

// AddPoll appends a poll directly to a contract's state and returns its id.
func (c *Chain) AddPoll(address common.Address, poll Poll) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	contract := c.contracts[address]
	if poll.Results == nil {
		poll.Results = make([]uint64, len(poll.Options))
	}
	if poll.Voters == nil {
		poll.Voters = make(map[common.Address]bool)
	}
	contract.Polls = append(contract.Polls, &poll)
	return int64(len(contract.Polls) - 1)
}

// MarkDecrypted simulates the gateway callback for a confidential poll.
func (c *Chain) MarkDecrypted(address common.Address, pollID int64, results []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	poll := c.contracts[address].Polls[pollID]
	poll.Decrypted = true
	if results != nil {
		poll.Results = append([]uint64(nil), results...)
	}
}

// SetResults overwrites a poll's tallies.
func (c *Chain) SetResults(address common.Address, pollID int64, results []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[address].Polls[pollID].Results = append([]uint64(nil), results...)
}

// PollState returns a copy of a poll's simulated state.
func (c *Chain) PollState(address common.Address, pollID int64) Poll {
	c.mu.Lock()
	defer c.mu.Unlock()

	poll := *c.contracts[address].Polls[pollID]
	poll.Results = append([]uint64(nil), poll.Results...)
	return poll
}

// Calls returns how many times method was called or sent.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

/* --------------------------------- endpoint.Client -------------------------------- */

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, ErrUnknownAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailReads > 0 {
		c.FailReads--
		return nil, ErrUnavailable
	}

	contract, ok := c.contracts[*msg.To]
	if !ok {
		// An empty response, like a call to an address without code.
		return nil, nil
	}
	method, args, err := decodeCall(contract.ABI, msg.Data)
	if err != nil {
		return nil, err
	}
	c.calls[method.Name]++

	values, err := c.view(contract, method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pending, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	pending.lookups++
	if pending.lookups <= c.ReceiptDelay {
		return nil, ethereum.NotFound
	}
	return pending.receipt, nil
}

/* --------------------------------- wallet.Wallet -------------------------------- */

// Wallet signs as Account and applies transactions to a Chain.
type Wallet struct {
	chain *Chain
}

// Wallet returns a wallet connected to c.
func (c *Chain) Wallet() *Wallet {
	return &Wallet{chain: c}
}

func (w *Wallet) Account() (common.Address, bool) {
	return Account, true
}

func (w *Wallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chain.chainID)
}

func (w *Wallet) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	return w.chain.send(ctx, to, data)
}

func (c *Chain) send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	contract, ok := c.contracts[to]
	if !ok {
		c.mu.Unlock()
		return common.Hash{}, ErrUnknownAddress
	}
	method, args, err := decodeCall(contract.ABI, data)
	if err != nil {
		c.mu.Unlock()
		return common.Hash{}, err
	}
	c.calls[method.Name]++

	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, c.nonce)
	c.nonce++
	c.block++
	hash := crypto.Keccak256Hash(nonce, to.Bytes(), data)

	receipt := &types.Receipt{
		Type:        types.DynamicFeeTxType,
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(c.block),
	}

	var afterApply func()
	if c.RevertMethods[method.Name] {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		logs, hook, err := c.apply(contract, method.Name, args)
		if err != nil {
			receipt.Status = types.ReceiptStatusFailed
		}
		for i, log := range logs {
			log.Address = to
			log.TxHash = hash
			log.BlockNumber = c.block
			log.Index = uint(i)
		}
		receipt.Logs = logs
		afterApply = hook
	}

	c.receipts[hash] = &pendingReceipt{receipt: receipt}
	c.mu.Unlock()

	if afterApply != nil {
		afterApply()
	}
	return hash, nil
}

/* --------------------------------- Contract Simulation -------------------------------- */

func decodeCall(contractABI *abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%w: short calldata", ErrReverted)
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrReverted, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return method, args, nil
}

func (c *Contract) poll(id *big.Int) (*Poll, error) {
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(c.Polls)) {
		return nil, fmt.Errorf("%w: poll %s does not exist", ErrReverted, id)
	}
	return c.Polls[id.Int64()], nil
}

func (c *Chain) view(contract *Contract, method string, args []any) ([]any, error) {
	switch method {
	case "pollCount":
		return []any{big.NewInt(int64(len(contract.Polls)))}, nil

	case "getPollInfo":
		id := args[0].(*big.Int)
		poll, err := contract.poll(id)
		if err != nil {
			return nil, err
		}
		values := []any{id, poll.Title, poll.Options, poll.Creator, big.NewInt(poll.EndTime), poll.Active}
		if contract.Confidential {
			values = append(values, poll.Decrypted)
		}
		return values, nil

	case "polls":
		id := args[0].(*big.Int)
		poll, err := contract.poll(id)
		if err != nil {
			return nil, err
		}
		return []any{id, poll.Title, poll.Creator, big.NewInt(poll.EndTime), poll.Active}, nil

	case "getResults":
		poll, err := contract.poll(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if contract.Confidential && !poll.Decrypted {
			return nil, fmt.Errorf("%w: results not decrypted", ErrReverted)
		}
		results := make([]*big.Int, len(poll.Results))
		for i, count := range poll.Results {
			results[i] = new(big.Int).SetUint64(count)
		}
		return []any{results}, nil

	case "hasVoted":
		poll, err := contract.poll(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []any{poll.Voters[args[1].(common.Address)]}, nil
	}
	return nil, fmt.Errorf("%w: %s is not a view", ErrReverted, method)
}

func (c *Chain) apply(contract *Contract, method string, args []any) ([]*types.Log, func(), error) {
	switch method {
	case "createPoll":
		title := args[0].(string)
		options := args[1].([]string)
		duration := args[2].(*big.Int)
		endTime := c.now().Unix() + duration.Int64()
		contract.Polls = append(contract.Polls, &Poll{
			Title:   title,
			Options: options,
			Creator: Account,
			EndTime: endTime,
			Active:  true,
			Results: make([]uint64, len(options)),
			Voters:  make(map[common.Address]bool),
		})
		id := big.NewInt(int64(len(contract.Polls) - 1))
		log, err := c.eventLog(contract, "PollCreated", []any{id, Account}, title, big.NewInt(endTime))
		return []*types.Log{log}, nil, err

	case "vote":
		id := args[0].(*big.Int)
		poll, err := contract.poll(id)
		if err != nil {
			return nil, nil, err
		}
		if !poll.Active || poll.Voters[Account] {
			return nil, nil, ErrReverted
		}
		var option uint64
		if contract.Confidential {
			handle := args[1].([32]byte)
			option = DecodeOption(handle)
		} else {
			option = args[1].(*big.Int).Uint64()
		}
		if option >= uint64(len(poll.Options)) {
			return nil, nil, ErrReverted
		}
		poll.Results[option]++
		poll.Voters[Account] = true
		log, err := c.eventLog(contract, "VoteSubmitted", []any{id, Account})
		return []*types.Log{log}, nil, err

	case "requestDecryption", "retryDecryption":
		id := args[0].(*big.Int)
		if _, err := contract.poll(id); err != nil {
			return nil, nil, err
		}
		contract.nextRequestID++
		requestID := big.NewInt(contract.nextRequestID)

		var logs []*types.Log
		if method == "requestDecryption" && !c.DropDecryptionEvent {
			log, err := c.eventLog(contract, "DecryptionRequested", []any{requestID, id}, big.NewInt(c.now().Unix()))
			if err != nil {
				return nil, nil, err
			}
			logs = append(logs, log)
		}
		if method == "retryDecryption" {
			log, err := c.eventLog(contract, "DecryptionRetrying", []any{requestID, id}, uint8(1))
			if err != nil {
				return nil, nil, err
			}
			logs = append(logs, log)
		}

		var hook func()
		if fn := c.OnDecryptionRequested; fn != nil {
			address := contract.Address
			hook = func() { fn(address, id, requestID) }
		}
		return logs, hook, nil

	case "endPoll", "cancelExpiredPoll":
		id := args[0].(*big.Int)
		poll, err := contract.poll(id)
		if err != nil {
			return nil, nil, err
		}
		poll.Active = false
		if method == "cancelExpiredPoll" {
			log, err := c.eventLog(contract, "PollExpired", []any{id}, big.NewInt(c.now().Unix()))
			return []*types.Log{log}, nil, err
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown method %s", ErrReverted, method)
}

// eventLog encodes an event with its indexed values as topics and the rest as data.
func (c *Chain) eventLog(contract *Contract, name string, indexed []any, data ...any) (*types.Log, error) {
	event := contract.ABI.Events[name]

	topics := []common.Hash{event.ID}
	for _, value := range indexed {
		switch v := value.(type) {
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		default:
			return nil, fmt.Errorf("unsupported indexed value %T", value)
		}
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, err
	}
	return &types.Log{Topics: topics, Data: packed}, nil
}

// EncodeOption builds a fake ciphertext handle carrying a plaintext option.
func EncodeOption(option uint64) [32]byte {
	var handle [32]byte
	binary.BigEndian.PutUint64(handle[24:], option)
	return handle
}

// DecodeOption reverses EncodeOption.
func DecodeOption(handle [32]byte) uint64 {
	return binary.BigEndian.Uint64(handle[24:])
}
