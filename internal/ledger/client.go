package ledger

import (
	"context"
	"fmt"
	"log"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusConfirmed TransferStatus = "confirmed"
	TransferStatusFailed    TransferStatus = "failed"
)

// Recipient is one payee of a transfer, amount in atomic units.
type Recipient struct {
	Address string
	Amount  int64
}

// TransferResult is the submission receipt for a transfer.
type TransferResult struct {
	TicketID string
	Status   TransferStatus
}

// TransferStatusInfo is the observed state of a previously submitted transfer.
type TransferStatusInfo struct {
	Status        TransferStatus
	Confirmations int
	Error         string
}

// Balance is a point-in-time balance for one address, in atomic units.
type Balance struct {
	Address string
	Amount  int64
}

// TokenClient is the raw external token service. It is not idempotent and not
// retried; Gateway layers retry and circuit breaking on top of it.
type TokenClient interface {
	Balance(ctx context.Context, address string) (int64, error)
	Balances(ctx context.Context, addresses []string) ([]Balance, error)
	Transfer(ctx context.Context, recipients []Recipient, signingKey string) (*TransferResult, error)
	TransferStatus(ctx context.Context, ticketID string) (*TransferStatusInfo, error)
	ValidAddress(address string) bool
}

// SolanaTokenClient talks to a Solana RPC node as the token service of record.
type SolanaTokenClient struct {
	rpcClient        *rpc.Client
	network          string
	tokenMintAddress string
}

func rpcURLFor(network string) string {
	switch network {
	case "mainnet-beta":
		return "https://api.mainnet-beta.solana.com"
	case "testnet":
		return "https://api.testnet.solana.com"
	default:
		return "https://api.devnet.solana.com"
	}
}

// NewSolanaTokenClient creates a client for the given network. An empty
// tokenMintAddress means balances are read as native units instead of SPL
// token accounts.
func NewSolanaTokenClient(network, tokenMintAddress string) *SolanaTokenClient {
	return &SolanaTokenClient{
		rpcClient:        rpc.New(rpcURLFor(network)),
		network:          network,
		tokenMintAddress: tokenMintAddress,
	}
}

// ValidAddress reports whether address parses as a Solana public key.
func (c *SolanaTokenClient) ValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// Balance returns the atomic-unit balance of address.
func (c *SolanaTokenClient) Balance(ctx context.Context, address string) (int64, error) {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, NewValidationError("invalid address %q: %v", address, err)
	}

	if c.tokenMintAddress == "" {
		resp, err := c.rpcClient.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, NewNetworkError("failed to get balance", err)
		}
		return int64(resp.Value), nil
	}

	mint, err := solana.PublicKeyFromBase58(c.tokenMintAddress)
	if err != nil {
		return 0, NewConfigurationError("invalid token mint address %q: %v", c.tokenMintAddress, err)
	}

	resp, err := c.rpcClient.GetTokenAccountsByOwner(
		ctx,
		pubKey,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return 0, NewNetworkError("failed to get token accounts", err)
	}

	// No account means zero balance. Sum if several exist.
	var total int64
	for _, account := range resp.Value {
		var tokenAccount token.Account
		decoder := bin.NewBinDecoder(account.Account.Data.GetBinary())
		if err := tokenAccount.UnmarshalWithDecoder(decoder); err != nil {
			log.Printf("[SolanaTokenClient] Warning: failed to decode token account data: %v", err)
			continue
		}
		total += int64(tokenAccount.Amount)
	}
	return total, nil
}

// Balances resolves a batch of addresses in one logical call. The RPC node
// has no owner-batched token balance endpoint, so the batch is resolved
// sequentially; a single failure fails the batch.
func (c *SolanaTokenClient) Balances(ctx context.Context, addresses []string) ([]Balance, error) {
	balances := make([]Balance, 0, len(addresses))
	for _, address := range addresses {
		amount, err := c.Balance(ctx, address)
		if err != nil {
			return nil, err
		}
		balances = append(balances, Balance{Address: address, Amount: amount})
	}
	return balances, nil
}

// Transfer submits one transaction paying every recipient and returns its
// signature as the ticket id. Submission acceptance is "pending"; callers
// learn the final outcome via TransferStatus.
func (c *SolanaTokenClient) Transfer(ctx context.Context, recipients []Recipient, signingKey string) (*TransferResult, error) {
	wallet, err := solana.WalletFromPrivateKeyBase58(signingKey)
	if err != nil {
		return nil, NewConfigurationError("invalid signing key: %v", err)
	}

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, NewNetworkError("failed to get recent blockhash", err)
	}

	instructions := make([]solana.Instruction, 0, len(recipients))
	for _, r := range recipients {
		to, err := solana.PublicKeyFromBase58(r.Address)
		if err != nil {
			return nil, NewValidationError("invalid recipient address %q: %v", r.Address, err)
		}
		instructions = append(instructions, system.NewTransferInstruction(
			uint64(r.Amount),
			wallet.PublicKey(),
			to,
		).Build())
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(wallet.PublicKey()),
	)
	if err != nil {
		return nil, NewNetworkError("failed to build transaction", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(wallet.PublicKey()) {
			return &wallet.PrivateKey
		}
		return nil
	}); err != nil {
		return nil, NewConfigurationError("failed to sign transaction: %v", err)
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, NewNetworkError("failed to send transaction", err)
	}

	return &TransferResult{TicketID: sig.String(), Status: TransferStatusPending}, nil
}

// TransferStatus looks up the confirmation state of ticketID. A signature the
// node has not seen yet is reported pending, not failed: the outcome of a
// timed-out submission is only known by asking again later.
func (c *SolanaTokenClient) TransferStatus(ctx context.Context, ticketID string) (*TransferStatusInfo, error) {
	sig, err := solana.SignatureFromBase58(ticketID)
	if err != nil {
		return nil, NewValidationError("invalid ticket id %q: %v", ticketID, err)
	}

	resp, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, NewNetworkError("failed to get signature status", err)
	}

	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return &TransferStatusInfo{Status: TransferStatusPending}, nil
	}

	status := resp.Value[0]
	if status.Err != nil {
		return &TransferStatusInfo{
			Status: TransferStatusFailed,
			Error:  fmt.Sprintf("%v", status.Err),
		}, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		confirmations := 0
		if status.Confirmations != nil {
			confirmations = int(*status.Confirmations)
		}
		return &TransferStatusInfo{Status: TransferStatusConfirmed, Confirmations: confirmations}, nil
	default:
		return &TransferStatusInfo{Status: TransferStatusPending}, nil
	}
}
