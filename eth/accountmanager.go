package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/console/prompt"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/common"
)

var (
	ErrAccountNotFound    = fmt.Errorf("payout account not found in keystore")
	ErrLocked             = fmt.Errorf("account locked")
	ErrPassphraseMismatch = fmt.Errorf("passphrases do not match")
)

// AccountManager holds the key of the account that pays out raffle prizes
type AccountManager interface {
	Unlock(passphrase string) error
	Lock() error
	SignTx(signer types.Signer, tx *types.Transaction) (*types.Transaction, error)
	Account() accounts.Account
}

// DefaultAccountManager keeps the payout key in a keystore directory. The key is
// only held in memory between Unlock and Lock
type DefaultAccountManager struct {
	account  accounts.Account
	unlocked bool
	keyStore *keystore.KeyStore
}

// NewAccountManager opens the payout account addr in keystoreDir. A zero addr selects
// the first account of the keystore. When the keystore is empty, or addr is set but not
// in it, a new account is created and its passphrase is read from the terminal
func NewAccountManager(addr ethcommon.Address, keystoreDir string) (AccountManager, error) {
	ks := keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	acct, err := openPayoutAccount(ks, addr)
	if err != nil {
		return nil, err
	}

	glog.Infof("Using payout account %v", acct.Address.Hex())

	return &DefaultAccountManager{
		account:  acct,
		keyStore: ks,
	}, nil
}

func openPayoutAccount(ks *keystore.KeyStore, addr ethcommon.Address) (accounts.Account, error) {
	existing := ks.Accounts()
	wanted := addr != ethcommon.Address{}

	if len(existing) == 0 || (wanted && !ks.HasAddress(addr)) {
		glog.Infof("No payout account found in keystore, creating one")
		glog.Infof("Choose a passphrase for the new key. The node asks for it on every start")

		passphrase, err := readPassphrase(true)
		if err != nil {
			return accounts.Account{}, err
		}
		return ks.NewAccount(passphrase)
	}

	if !wanted {
		glog.V(common.SHORT).Infof("No payout account given, using the first keystore account %v", existing[0].Address.Hex())
		return existing[0], nil
	}

	for _, acct := range existing {
		if acct.Address == addr {
			return acct, nil
		}
	}
	return accounts.Account{}, ErrAccountNotFound
}

// Unlock decrypts the payout key. If an empty passphrase does not decrypt it the
// passphrase is read from the terminal instead
func (am *DefaultAccountManager) Unlock(passphrase string) error {
	err := am.keyStore.Unlock(am.account, passphrase)
	if err != nil && passphrase == "" {
		glog.Infof("Enter the passphrase of payout account %v", am.account.Address.Hex())

		prompted, perr := readPassphrase(false)
		if perr != nil {
			return err
		}
		err = am.keyStore.Unlock(am.account, prompted)
	}
	if err != nil {
		return err
	}

	am.unlocked = true
	glog.Infof("Unlocked payout account %v", am.account.Address.Hex())

	return nil
}

// Lock drops the decrypted key from memory
func (am *DefaultAccountManager) Lock() error {
	if err := am.keyStore.Lock(am.account.Address); err != nil {
		return err
	}
	am.unlocked = false
	return nil
}

func (am *DefaultAccountManager) SignTx(signer types.Signer, tx *types.Transaction) (*types.Transaction, error) {
	if !am.unlocked {
		return nil, ErrLocked
	}

	sig, err := am.keyStore.SignHash(am.account, signer.Hash(tx).Bytes())
	if err != nil {
		return nil, err
	}

	return tx.WithSignature(signer, sig)
}

func (am *DefaultAccountManager) Account() accounts.Account {
	return am.account
}

func readPassphrase(confirm bool) (string, error) {
	passphrase, err := prompt.Stdin.PromptPassword("Payout account passphrase: ")
	if err != nil {
		return "", err
	}
	if !confirm {
		return passphrase, nil
	}

	again, err := prompt.Stdin.PromptPassword("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if passphrase != again {
		return "", ErrPassphraseMismatch
	}

	return passphrase, nil
}
