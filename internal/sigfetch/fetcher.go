// Package sigfetch implements paginated signature-history retrieval:
// newest-first pages with an oldest-first full-history mode, plus
// per-address coalescing of concurrent identical requests.
package sigfetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/singleflight"

	"github.com/solguard/riskengine/internal/rpcpool"
	"github.com/solguard/riskengine/internal/schema"
)

// Bound selects how much history to retrieve. Exactly one of Limit,
// Before+Limit, or UntilOldest is meaningful at a time.
type Bound struct {
	Limit       int
	Before      string
	UntilOldest bool
}

const untilOldestCap = 3 * 1000 // bounds full-history RPC cost

// Fetcher wraps an rpcpool.Pool with the signature-history contract.
type Fetcher struct {
	pool  *rpcpool.Pool
	group singleflight.Group // coalesces concurrent fetches for the same address
}

// New constructs a Fetcher over the given pool.
func New(pool *rpcpool.Pool) *Fetcher {
	return &Fetcher{pool: pool}
}

// FetchSignatures retrieves signature history for address under bound.
// The RPC returns newest-first; {limit} bounds preserve that ordering,
// {until_oldest} bounds return the full reversed (oldest-first) list.
func (f *Fetcher) FetchSignatures(ctx context.Context, address string, bound Bound) ([]schema.Signature, error) {
	key := fmt.Sprintf("%s:%d:%s:%v", address, bound.Limit, bound.Before, bound.UntilOldest)

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		if bound.UntilOldest {
			return f.fetchUntilOldest(ctx, address)
		}
		return f.fetchPage(ctx, address, bound.Before, bound.Limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]schema.Signature), nil
}

func (f *Fetcher) fetchPage(ctx context.Context, address, before string, limit int) ([]schema.Signature, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, address)
	}
	if limit <= 0 {
		limit = 1000
	}

	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
	if before != "" {
		beforeSig, err := solana.SignatureFromBase58(before)
		if err == nil {
			opts.Before = beforeSig
		}
	}

	result, err := rpcpool.Call(ctx, f.pool, "getSignaturesForAddress", func(c context.Context, rc *rpc.Client) ([]*rpc.TransactionSignature, error) {
		return rc.GetSignaturesForAddressWithOpts(c, pubkey, opts)
	})
	if err != nil {
		return nil, err
	}
	return toSignatures(result), nil
}

// fetchUntilOldest paginates backward until the RPC returns an empty
// page, capped at untilOldestCap total signatures, then reverses the
// accumulated list to oldest-first.
func (f *Fetcher) fetchUntilOldest(ctx context.Context, address string) ([]schema.Signature, error) {
	var all []schema.Signature
	before := ""
	for len(all) < untilOldestCap {
		if ctx.Err() != nil {
			return nil, rpcpool.ErrDeadlineExceeded
		}
		page, err := f.fetchPage(ctx, address, before, 1000)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		before = page[len(page)-1].Sig
		if len(page) < 1000 {
			break
		}
	}
	if len(all) > untilOldestCap {
		all = all[:untilOldestCap]
	}
	reverse(all)
	return all, nil
}

func toSignatures(in []*rpc.TransactionSignature) []schema.Signature {
	out := make([]schema.Signature, 0, len(in))
	for _, s := range in {
		var bt int64
		if s.BlockTime != nil {
			bt = int64(*s.BlockTime)
		}
		out = append(out, schema.Signature{
			Sig:       s.Signature.String(),
			Slot:      s.Slot,
			BlockTime: bt,
			WasError:  s.Err != nil,
		})
	}
	return out
}

func reverse(s []schema.Signature) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// FetchTransaction retrieves and parses a single transaction into the
// shared Transaction shape, independent of signature-list pagination.
func (f *Fetcher) FetchTransaction(ctx context.Context, sig string) (*schema.Transaction, error) {
	txSig, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, sig)
	}

	version := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &version,
	}

	result, err := rpcpool.Call(ctx, f.pool, "getTransaction", func(c context.Context, rc *rpc.Client) (*rpc.GetTransactionResult, error) {
		return rc.GetTransaction(c, txSig, opts)
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Meta == nil {
		return nil, fmt.Errorf("%w: empty transaction result for %s", rpcpool.ErrMalformedResponse, sig)
	}

	tx := &schema.Transaction{
		Signature:    sig,
		Failed:       result.Meta.Err != nil,
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
	}
	if result.BlockTime != nil {
		tx.BlockTime = int64(*result.BlockTime)
	}

	if parsedTx, err := result.Transaction.GetTransaction(); err == nil && parsedTx != nil {
		for _, k := range parsedTx.Message.AccountKeys {
			tx.AccountKeys = append(tx.AccountKeys, k.String())
		}
	}

	tx.TokenDeltas = mergeTokenBalances(result.Meta.PreTokenBalances, result.Meta.PostTokenBalances, tx.AccountKeys)

	return tx, nil
}

// TokenAccountsByOwner lists the distinct mints an owner holds a
// balance in, via getParsedTokenAccountsByOwner.
func (f *Fetcher) TokenAccountsByOwner(ctx context.Context, owner string) ([]string, error) {
	pubkey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, owner)
	}

	result, err := rpcpool.Call(ctx, f.pool, "getParsedTokenAccountsByOwner", func(c context.Context, rc *rpc.Client) (*rpc.GetTokenAccountsResult, error) {
		return rc.GetTokenAccountsByOwner(c, pubkey,
			&rpc.GetTokenAccountsConfig{ProgramId: &solana.TokenProgramID},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed})
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var mints []string
	for _, acc := range result.Value {
		parsed := acc.Account.Data.GetRawJSON()
		if parsed == nil {
			continue
		}
		var decoded struct {
			Parsed struct {
				Info struct {
					Mint string `json:"mint"`
				} `json:"info"`
			} `json:"parsed"`
		}
		if json.Unmarshal(parsed, &decoded) != nil {
			continue
		}
		mint := decoded.Parsed.Info.Mint
		if mint != "" && !seen[mint] {
			seen[mint] = true
			mints = append(mints, mint)
		}
	}
	return mints, nil
}

// LargestHolderCount returns the number of entries getTokenLargestAccounts
// returns for mint (capped at 20 by the RPC itself). A count strictly
// below that cap is a reliable lower bound on the true holder count
// being small; it is not an exact total once the cap is hit.
func (f *Fetcher) LargestHolderCount(ctx context.Context, mint string) (int, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, mint)
	}

	result, err := rpcpool.Call(ctx, f.pool, "getTokenLargestAccounts", func(c context.Context, rc *rpc.Client) (*rpc.GetTokenLargestAccountsResult, error) {
		return rc.GetTokenLargestAccounts(c, pubkey, rpc.CommitmentFinalized)
	})
	if err != nil {
		return 0, err
	}
	return len(result.Value), nil
}

// AccountLabel returns the provider-attached label for address, if the
// selected RPC endpoint enriches getAccountInfo responses with one.
// Vanilla endpoints carry no label; empty string means unlabelled.
func (f *Fetcher) AccountLabel(ctx context.Context, address string) (string, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, address)
	}

	result, err := rpcpool.Call(ctx, f.pool, "getAccountInfo", func(c context.Context, rc *rpc.Client) (*rpc.GetAccountInfoResult, error) {
		return rc.GetAccountInfoWithOpts(c, pubkey, &rpc.GetAccountInfoOpts{Encoding: solana.EncodingJSONParsed})
	})
	if err != nil {
		return "", err
	}
	if result == nil || result.Value == nil {
		return "", nil
	}
	raw := result.Value.Data.GetRawJSON()
	if raw == nil {
		return "", nil
	}
	var decoded struct {
		Parsed struct {
			Info struct {
				Label string `json:"label"`
				Name  string `json:"name"`
			} `json:"info"`
		} `json:"parsed"`
	}
	if json.Unmarshal(raw, &decoded) != nil {
		return "", nil
	}
	if decoded.Parsed.Info.Label != "" {
		return decoded.Parsed.Info.Label, nil
	}
	return decoded.Parsed.Info.Name, nil
}

// MintSupply returns the mint's total supply in ui units plus decimals.
func (f *Fetcher) MintSupply(ctx context.Context, mint string) (uint64, uint8, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", rpcpool.ErrInvalidInput, mint)
	}

	result, err := rpcpool.Call(ctx, f.pool, "getTokenSupply", func(c context.Context, rc *rpc.Client) (*rpc.GetTokenSupplyResult, error) {
		return rc.GetTokenSupply(c, pubkey, rpc.CommitmentFinalized)
	})
	if err != nil {
		return 0, 0, err
	}
	if result == nil || result.Value == nil {
		return 0, 0, fmt.Errorf("%w: empty token supply for %s", rpcpool.ErrMalformedResponse, mint)
	}

	supply := uint64(0)
	if result.Value.UiAmount != nil {
		supply = uint64(*result.Value.UiAmount)
	}
	return supply, result.Value.Decimals, nil
}

// mergeTokenBalances turns pre/post SPL token-balance snapshots into one
// delta per (owner, mint), matching by account index.
func mergeTokenBalances(pre, post []rpc.TokenBalance, accountKeys []string) []schema.TokenBalanceDelta {
	type key struct {
		owner string
		mint  string
	}
	preByKey := map[key]float64{}
	owners := map[uint16]string{}

	resolveOwner := func(tb rpc.TokenBalance) string {
		if tb.Owner != nil {
			return tb.Owner.String()
		}
		if int(tb.AccountIndex) < len(accountKeys) {
			return accountKeys[tb.AccountIndex]
		}
		return ""
	}

	for _, tb := range pre {
		owner := resolveOwner(tb)
		owners[tb.AccountIndex] = owner
		amt := 0.0
		if tb.UiTokenAmount != nil && tb.UiTokenAmount.UiAmount != nil {
			amt = *tb.UiTokenAmount.UiAmount
		}
		preByKey[key{owner, tb.Mint.String()}] = amt
	}

	seen := map[key]bool{}
	var out []schema.TokenBalanceDelta
	for _, tb := range post {
		owner := resolveOwner(tb)
		postAmt := 0.0
		if tb.UiTokenAmount != nil && tb.UiTokenAmount.UiAmount != nil {
			postAmt = *tb.UiTokenAmount.UiAmount
		}
		k := key{owner, tb.Mint.String()}
		seen[k] = true
		out = append(out, schema.TokenBalanceDelta{
			Owner:  owner,
			Mint:   tb.Mint.String(),
			PreUI:  preByKey[k],
			PostUI: postAmt,
		})
	}
	// Tokens present pre but fully drained post (no post entry at all).
	for k, preAmt := range preByKey {
		if seen[k] {
			continue
		}
		out = append(out, schema.TokenBalanceDelta{Owner: k.owner, Mint: k.mint, PreUI: preAmt, PostUI: 0})
	}
	return out
}
