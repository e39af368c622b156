package eth

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/common"
	"github.com/livepeer/go-raffle/raffle"
	"github.com/pkg/errors"
)

const (
	transferGas = uint64(21000)

	// priceBump is the percentage a replacement raises both fee caps by
	priceBump = 11
)

var (
	ErrInvalidTransferAmount = errors.New("invalid transfer amount")

	// ErrPayoutNonceUsed is returned when the nonce of an earlier payout attempt was
	// consumed by a transaction that is not one of the recorded attempts
	ErrPayoutNonceUsed = errors.New("payout nonce used by an unknown transaction")
)

type payoutStatus int

const (
	payoutNew payoutStatus = iota
	// payoutPending means no attempt was mined and the nonce is still free
	payoutPending
	payoutMined
	// payoutReverted means an attempt was mined but failed, so nothing was paid
	payoutReverted
)

// PayerBackend is the subset of an Ethereum client needed to send a value
// transfer and wait for it to be mined. *ethclient.Client satisfies it
type PayerBackend interface {
	bind.DeployBackend
	RemoteNonceReader
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	NonceAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) (uint64, error)
	TransactionByHash(ctx context.Context, hash ethcommon.Hash) (*types.Transaction, bool, error)
}

// TransferPayer pays raffle winners with plain value transfers from the
// unlocked payout account
type TransferPayer struct {
	backend   PayerBackend
	am        AccountManager
	nonces    *NonceManager
	signer    types.Signer
	txTimeout time.Duration
}

var _ raffle.TxPayer = (*TransferPayer)(nil)

func NewTransferPayer(ctx context.Context, backend PayerBackend, am AccountManager, txTimeout time.Duration) (*TransferPayer, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read chain id")
	}

	return &TransferPayer{
		backend:   backend,
		am:        am,
		nonces:    NewNonceManager(am.Account().Address, backend),
		signer:    types.LatestSignerForChainID(chainID),
		txTimeout: txTimeout,
	}, nil
}

// Transfer sends amount to the winner and blocks until the transaction is
// mined or txTimeout passes
func (p *TransferPayer) Transfer(ctx context.Context, to ethcommon.Address, amount *big.Int) error {
	return p.TransferTx(ctx, to, amount, nil, func(*raffle.PayoutTx) {})
}

// TransferTx is Transfer for a payout that may have been attempted before. If one of the
// attempts in prev was mined nothing is sent. If none was mined and their nonce is still
// free the transfer is replaced on that nonce with bumped fees, so at most one attempt can
// ever be mined. A reverted attempt paid nothing and the transfer is sent with a new nonce
func (p *TransferPayer) TransferTx(ctx context.Context, to ethcommon.Address, amount *big.Int, prev *raffle.PayoutTx, broadcast func(*raffle.PayoutTx)) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransferAmount
	}

	status := payoutNew
	if prev != nil && len(prev.Hashes) > 0 {
		var err error
		if status, err = p.payoutStatus(ctx, prev); err != nil {
			return err
		}
	}

	var (
		tx     *types.Transaction
		hashes []ethcommon.Hash
		err    error
	)
	switch status {
	case payoutMined:
		clog.Infof(ctx, "Payout already mined nonce=%v to=%v amount=%v", prev.Nonce, to.Hex(), common.FormatWei(amount))
		return nil
	case payoutPending:
		tx, err = p.replace(ctx, to, amount, prev)
		hashes = prev.Hashes
	default:
		tx, err = p.send(ctx, to, amount)
	}
	if err != nil {
		return err
	}

	broadcast(&raffle.PayoutTx{
		Nonce:  tx.Nonce(),
		Hashes: append(append([]ethcommon.Hash(nil), hashes...), tx.Hash()),
	})

	clog.V(common.SHORT).Infof(ctx, "Sent payout tx hash=%v nonce=%v to=%v amount=%v", tx.Hash().Hex(), tx.Nonce(), to.Hex(), common.FormatWei(amount))

	return p.checkTx(ctx, tx)
}

// payoutStatus looks up the earlier attempts of a payout. The confirmed nonce is read
// before the receipts so an attempt mined in between is still found
func (p *TransferPayer) payoutStatus(ctx context.Context, prev *raffle.PayoutTx) (payoutStatus, error) {
	confirmed, err := p.backend.NonceAt(ctx, p.am.Account().Address, nil)
	if err != nil {
		return payoutNew, errors.Wrap(err, "could not read confirmed nonce")
	}

	for _, h := range prev.Hashes {
		receipt, err := p.backend.TransactionReceipt(ctx, h)
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			return payoutNew, errors.Wrapf(err, "could not read receipt of payout tx %v", h.Hex())
		}

		if receipt.Status == types.ReceiptStatusSuccessful {
			return payoutMined, nil
		}
		clog.Warningf(ctx, "Payout tx reverted hash=%v nonce=%v", h.Hex(), prev.Nonce)
		return payoutReverted, nil
	}

	if confirmed > prev.Nonce {
		return payoutNew, errors.Wrapf(ErrPayoutNonceUsed, "nonce=%v confirmed=%v", prev.Nonce, confirmed)
	}

	return payoutPending, nil
}

func (p *TransferPayer) send(ctx context.Context, to ethcommon.Address, amount *big.Int) (*types.Transaction, error) {
	p.nonces.Lock()
	defer p.nonces.Unlock()

	nonce, err := p.nonces.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read nonce")
	}

	baseTx, err := p.newTransferTx(ctx, nonce, to, amount)
	if err != nil {
		return nil, err
	}

	signed, err := p.signAndSend(ctx, baseTx)
	if err != nil {
		p.nonces.Reset()
		return nil, err
	}

	p.nonces.Update(nonce)

	return signed, nil
}

// replace sends the transfer again with the nonce of prev. Fees are bumped over the
// last attempt if the node still knows it, otherwise fresh fees are used
func (p *TransferPayer) replace(ctx context.Context, to ethcommon.Address, amount *big.Int, prev *raffle.PayoutTx) (*types.Transaction, error) {
	p.nonces.Lock()
	defer p.nonces.Unlock()

	baseTx, err := p.newTransferTx(ctx, prev.Nonce, to, amount)
	if err != nil {
		return nil, err
	}

	last := prev.Hashes[len(prev.Hashes)-1]
	old, _, err := p.backend.TransactionByHash(ctx, last)
	switch {
	case err == nil:
		baseTx.GasTipCap = maxBig(baseTx.GasTipCap, applyPriceBump(old.GasTipCap(), priceBump))
		baseTx.GasFeeCap = maxBig(baseTx.GasFeeCap, applyPriceBump(old.GasFeeCap(), priceBump))
	case !errors.Is(err, ethereum.NotFound):
		return nil, errors.Wrapf(err, "could not read payout tx %v", last.Hex())
	}

	glog.Infof("Replacing payout tx hash=%v nonce=%v tip=%v feeCap=%v", last.Hex(), prev.Nonce, baseTx.GasTipCap, baseTx.GasFeeCap)

	return p.signAndSend(ctx, baseTx)
}

func (p *TransferPayer) newTransferTx(ctx context.Context, nonce uint64, to ethcommon.Address, amount *big.Int) (*types.DynamicFeeTx, error) {
	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not suggest gas tip")
	}

	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not read latest header")
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	return &types.DynamicFeeTx{
		ChainID:   p.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       transferGas,
		To:        &to,
		Value:     new(big.Int).Set(amount),
	}, nil
}

func (p *TransferPayer) signAndSend(ctx context.Context, baseTx *types.DynamicFeeTx) (*types.Transaction, error) {
	signed, err := p.am.SignTx(p.signer, types.NewTx(baseTx))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign payout tx")
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Wrap(err, "could not send payout tx")
	}

	return signed, nil
}

func (p *TransferPayer) checkTx(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, p.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, p.backend, tx)
	if err != nil {
		return errors.Wrapf(err, "payout tx %v not mined", tx.Hash().Hex())
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return errors.Errorf("tx %v failed", tx.Hash().Hex())
	}

	return nil
}

// applyPriceBump raises val by priceBump percent, rounding up
func applyPriceBump(val *big.Int, priceBump uint64) *big.Int {
	a := big.NewInt(100 + int64(priceBump))
	b := new(big.Int).Mul(a, val)
	b.Add(b, big.NewInt(99))
	return b.Div(b, big.NewInt(100))
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
