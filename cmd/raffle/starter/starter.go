package starter

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/build"
	"github.com/livepeer/go-raffle/common"
	"github.com/livepeer/go-raffle/eth"
	"github.com/livepeer/go-raffle/keeper"
	"github.com/livepeer/go-raffle/monitor"
	"github.com/livepeer/go-raffle/raffle"
	"github.com/livepeer/go-raffle/server"
	"github.com/livepeer/go-raffle/vrf"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// Version is set at build time
var Version = "undefined"

const (
	RaffleCliPort = "7935"

	// localRaffleAddr is the address of the first contract deployed on a fresh local chain
	localRaffleAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	defaultGasLane  = "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c"
)

type RaffleConfig struct {
	Network            *string
	Datadir            *string
	CliAddr            *string
	RaffleAddr         *string
	EntranceFee        *string
	Interval           *time.Duration
	GasLane            *string
	SubscriptionID     *uint64
	CallbackGasLimit   *uint
	SubscriptionFund   *string
	AutoFulfill        *bool
	FulfillDelay       *time.Duration
	Keeper             *bool
	KeeperPollInterval *time.Duration
	KeeperMaxRetries   *uint64
	KeeperStuckAfter   *time.Duration
	EthUrl             *string
	EthAcctAddr        *string
	EthPassword        *string
	EthKeystorePath    *string
	TxTimeout          *time.Duration
	Monitor            *bool
	KafkaBootstrap     *string
	KafkaUsername      *string
	KafkaPassword      *string
	KafkaTopic         *string
}

// DefaultRaffleConfig returns the default values. Preset backed fields are left at
// their zero value and are resolved from the network preset when not set
func DefaultRaffleConfig() RaffleConfig {
	defaultNetwork := "localhost"
	defaultDatadir := ""
	defaultCliAddr := "127.0.0.1:" + RaffleCliPort
	defaultRaffleAddr := ""
	defaultEntranceFee := ""
	defaultInterval := time.Duration(0)
	defaultGasLane := ""
	defaultSubscriptionID := uint64(0)
	defaultCallbackGasLimit := uint(0)
	defaultSubscriptionFund := "2"
	defaultAutoFulfill := true
	defaultFulfillDelay := 2 * time.Second
	defaultKeeper := true
	defaultKeeperPollInterval := 5 * time.Second
	defaultKeeperMaxRetries := uint64(3)
	defaultKeeperStuckAfter := 10 * time.Minute
	defaultEthUrl := ""
	defaultEthAcctAddr := ""
	defaultEthPassword := ""
	defaultEthKeystorePath := ""
	defaultTxTimeout := 5 * time.Minute
	defaultMonitor := false
	defaultKafkaBootstrap := ""
	defaultKafkaUsername := ""
	defaultKafkaPassword := ""
	defaultKafkaTopic := ""

	if home, err := os.UserHomeDir(); err == nil {
		defaultDatadir = filepath.Join(home, ".raffle")
	}

	return RaffleConfig{
		Network:            &defaultNetwork,
		Datadir:            &defaultDatadir,
		CliAddr:            &defaultCliAddr,
		RaffleAddr:         &defaultRaffleAddr,
		EntranceFee:        &defaultEntranceFee,
		Interval:           &defaultInterval,
		GasLane:            &defaultGasLane,
		SubscriptionID:     &defaultSubscriptionID,
		CallbackGasLimit:   &defaultCallbackGasLimit,
		SubscriptionFund:   &defaultSubscriptionFund,
		AutoFulfill:        &defaultAutoFulfill,
		FulfillDelay:       &defaultFulfillDelay,
		Keeper:             &defaultKeeper,
		KeeperPollInterval: &defaultKeeperPollInterval,
		KeeperMaxRetries:   &defaultKeeperMaxRetries,
		KeeperStuckAfter:   &defaultKeeperStuckAfter,
		EthUrl:             &defaultEthUrl,
		EthAcctAddr:        &defaultEthAcctAddr,
		EthPassword:        &defaultEthPassword,
		EthKeystorePath:    &defaultEthKeystorePath,
		TxTimeout:          &defaultTxTimeout,
		Monitor:            &defaultMonitor,
		KafkaBootstrap:     &defaultKafkaBootstrap,
		KafkaUsername:      &defaultKafkaUsername,
		KafkaPassword:      &defaultKafkaPassword,
		KafkaTopic:         &defaultKafkaTopic,
	}
}

func (cfg RaffleConfig) PrintConfig(w io.Writer) {
	// compare current settings with default values, and print the difference
	defCfg := DefaultRaffleConfig()
	vDefCfg := reflect.ValueOf(defCfg)
	vCfg := reflect.ValueOf(cfg)
	cfgType := vCfg.Type()
	paramTable := tablewriter.NewWriter(w)

	sensitiveFields := map[string]bool{
		"EthPassword":   true,
		"KafkaPassword": true,
	}

	for i := 0; i < cfgType.NumField(); i++ {
		if !vDefCfg.Field(i).IsNil() && !vCfg.Field(i).IsNil() && vCfg.Field(i).Elem().Interface() != vDefCfg.Field(i).Elem().Interface() {
			val := fmt.Sprintf("%v", vCfg.Field(i).Elem())
			if _, ok := sensitiveFields[cfgType.Field(i).Name]; ok {
				val = "***"
			}
			paramTable.Append([]string{cfgType.Field(i).Name, val})
		}
	}
	paramTable.SetAlignment(tablewriter.ALIGN_LEFT)
	paramTable.SetCenterSeparator("*")
	paramTable.SetColumnSeparator("|")
	paramTable.Render()
}

type networkPreset struct {
	chainID          int64
	vrfCoordinator   string
	gasLane          string
	subscriptionID   uint64
	callbackGasLimit uint32
	entranceFee      string
	interval         time.Duration
}

var networkPresets = map[string]*networkPreset{
	"sepolia": {
		chainID:          11155111,
		vrfCoordinator:   "0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625",
		gasLane:          defaultGasLane,
		subscriptionID:   11479,
		callbackGasLimit: 500000,
		entranceFee:      "0.01",
		interval:         30 * time.Second,
	},
	"localhost": {
		chainID:          31337,
		gasLane:          defaultGasLane,
		subscriptionID:   1,
		callbackGasLimit: 500000,
		entranceFee:      "0.01",
		interval:         30 * time.Second,
	},
}

// raffleParams are the raffle settings after applying flag overrides to the network preset
type raffleParams struct {
	network          string
	chainID          *big.Int
	vrfCoordinator   string
	entranceFee      *big.Int
	interval         time.Duration
	gasLane          ethcommon.Hash
	subscriptionID   uint64
	callbackGasLimit uint32
}

func resolveParams(cfg RaffleConfig) (*raffleParams, error) {
	preset, ok := networkPresets[*cfg.Network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", *cfg.Network)
	}

	p := &raffleParams{
		network:          *cfg.Network,
		chainID:          big.NewInt(preset.chainID),
		vrfCoordinator:   preset.vrfCoordinator,
		interval:         preset.interval,
		subscriptionID:   preset.subscriptionID,
		callbackGasLimit: preset.callbackGasLimit,
	}

	fee := preset.entranceFee
	if cfg.EntranceFee != nil && *cfg.EntranceFee != "" {
		fee = *cfg.EntranceFee
	}
	var err error
	p.entranceFee, err = common.ParseEther(fee)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid entrance fee %q", fee)
	}

	if cfg.Interval != nil {
		if *cfg.Interval < 0 {
			return nil, fmt.Errorf("invalid interval %v", *cfg.Interval)
		}
		p.interval = *cfg.Interval
	}

	gasLane := preset.gasLane
	if cfg.GasLane != nil && *cfg.GasLane != "" {
		gasLane = *cfg.GasLane
	}
	b, err := ethcommon.ParseHexOrString(gasLane)
	if err != nil || len(b) != ethcommon.HashLength {
		return nil, fmt.Errorf("invalid gas lane %q", gasLane)
	}
	p.gasLane = ethcommon.BytesToHash(b)

	if cfg.SubscriptionID != nil {
		p.subscriptionID = *cfg.SubscriptionID
	}
	if p.subscriptionID == 0 {
		return nil, fmt.Errorf("invalid subscription id 0")
	}

	if cfg.CallbackGasLimit != nil {
		if *cfg.CallbackGasLimit == 0 || *cfg.CallbackGasLimit > uint(^uint32(0)) {
			return nil, fmt.Errorf("invalid callback gas limit %v", *cfg.CallbackGasLimit)
		}
		p.callbackGasLimit = uint32(*cfg.CallbackGasLimit)
	}

	return p, nil
}

// raffleNode owns every long lived component of a running raffle
type raffleNode struct {
	params *raffleParams
	db     *common.DB
	coord  *vrf.MockCoordinator
	raffle *raffle.Raffle
	info   *server.InstanceInfo
}

func newRaffleNode(ctx context.Context, cfg RaffleConfig) (*raffleNode, error) {
	params, err := resolveParams(cfg)
	if err != nil {
		return nil, err
	}

	datadir := filepath.Join(*cfg.Datadir, params.network)
	if err := os.MkdirAll(datadir, 0755); err != nil {
		return nil, errors.Wrap(err, "error creating datadir")
	}

	db, err := common.InitDB(filepath.Join(datadir, "raffledb.sqlite3"))
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}

	n := &raffleNode{params: params, db: db}
	if err := n.setup(ctx, cfg, datadir); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *raffleNode) setup(ctx context.Context, cfg RaffleConfig, datadir string) error {
	payer, payerName, payoutAddr, chainID, err := setupPayer(ctx, cfg, datadir)
	if err != nil {
		return err
	}
	if chainID == nil {
		chainID = n.params.chainID
	} else if chainID.Cmp(n.params.chainID) != 0 {
		glog.Warningf("Connected chain id=%v does not match network=%v chain id=%v", chainID, n.params.network, n.params.chainID)
	}
	if err := checkOrStoreChainID(n.db, chainID); err != nil {
		return err
	}

	raffleAddr := ethcommon.HexToAddress(localRaffleAddr)
	if *cfg.RaffleAddr != "" {
		raffleAddr, err = common.ParseAddress(*cfg.RaffleAddr)
		if err != nil {
			return errors.Wrapf(err, "invalid raffle address %q", *cfg.RaffleAddr)
		}
	} else if (payoutAddr != ethcommon.Address{}) {
		raffleAddr = payoutAddr
	}

	n.coord = vrf.NewMockCoordinator(vrf.BaseFee, vrf.GasPriceLink)
	if err := n.coord.CreateSubscriptionWithID(n.params.subscriptionID, raffleAddr); err != nil {
		return err
	}
	if fund := *cfg.SubscriptionFund; fund != "" && fund != "0" {
		amount, err := common.ParseEther(fund)
		if err != nil {
			return errors.Wrapf(err, "invalid subscription funding %q", fund)
		}
		if err := n.coord.FundSubscription(n.params.subscriptionID, amount); err != nil {
			return err
		}
	}

	n.raffle, err = raffle.NewRaffle(raffle.Config{
		Address:          raffleAddr,
		EntranceFee:      n.params.entranceFee,
		Interval:         n.params.interval,
		KeyHash:          n.params.gasLane,
		SubscriptionID:   n.params.subscriptionID,
		CallbackGasLimit: n.params.callbackGasLimit,
	}, n.coord, payer, nil, n.db)
	if err != nil {
		return err
	}
	if err := n.coord.AddConsumer(n.params.subscriptionID, raffleAddr, n.raffle); err != nil {
		return err
	}

	// a request accepted before a restart is still owed its words
	if pending := n.raffle.PendingRequest(); pending != nil {
		glog.Infof("Resuming pending randomness request requestId=%v requestedAt=%v", pending.ID, pending.RequestedAt)
		if err := n.coord.RestoreRequest(pending.ID, n.raffle.RandomWordsRequest()); err != nil {
			return err
		}
	}

	n.info = &server.InstanceInfo{
		Network:          n.params.network,
		ChainID:          chainID,
		Address:          raffleAddr,
		EntranceFee:      n.params.entranceFee,
		Interval:         n.params.interval.String(),
		KeyHash:          n.params.gasLane,
		VRFCoordinator:   n.params.vrfCoordinator,
		SubscriptionID:   n.params.subscriptionID,
		CallbackGasLimit: n.params.callbackGasLimit,
		Payer:            payerName,
		Version:          Version,
	}

	glog.Infof("Raffle ready network=%v address=%v entranceFee=%v interval=%v", n.params.network, raffleAddr.Hex(),
		common.FormatWei(n.params.entranceFee), n.params.interval)
	return nil
}

func (n *raffleNode) Close() {
	if n.raffle != nil {
		n.raffle.Close()
	}
	if n.coord != nil {
		n.coord.Close()
	}
	n.db.Close()
}

// setupPayer returns the on-chain payer when an Ethereum node is configured and an
// in-memory balance book otherwise
func setupPayer(ctx context.Context, cfg RaffleConfig, datadir string) (raffle.Payer, string, ethcommon.Address, *big.Int, error) {
	if *cfg.EthUrl == "" {
		glog.Warning("No -ethUrl provided, winners are paid into an in-memory balance book")
		return eth.NewBalanceBook(), "balancebook", ethcommon.Address{}, nil, nil
	}

	keystoreDir := filepath.Join(datadir, "keystore")
	if *cfg.EthKeystorePath != "" {
		keystoreDir = *cfg.EthKeystorePath
	}

	var acctAddr ethcommon.Address
	if *cfg.EthAcctAddr != "" {
		var err error
		acctAddr, err = common.ParseAddress(*cfg.EthAcctAddr)
		if err != nil {
			return nil, "", ethcommon.Address{}, nil, errors.Wrapf(err, "invalid -ethAcctAddr %q", *cfg.EthAcctAddr)
		}
	}

	am, err := eth.NewAccountManager(acctAddr, keystoreDir)
	if err != nil {
		return nil, "", ethcommon.Address{}, nil, errors.Wrap(err, "error creating account manager")
	}

	passphrase, err := common.ReadSecret(*cfg.EthPassword, 0)
	if err != nil {
		return nil, "", ethcommon.Address{}, nil, errors.Wrap(err, "error reading -ethPassword")
	}
	if err := am.Unlock(passphrase); err != nil {
		return nil, "", ethcommon.Address{}, nil, errors.Wrap(err, "error unlocking payout account")
	}

	backend, err := ethclient.DialContext(ctx, *cfg.EthUrl)
	if err != nil {
		return nil, "", ethcommon.Address{}, nil, errors.Wrapf(err, "failed to connect to Ethereum client url=%v", *cfg.EthUrl)
	}

	payer, err := eth.NewTransferPayer(ctx, backend, am, *cfg.TxTimeout)
	if err != nil {
		backend.Close()
		return nil, "", ethcommon.Address{}, nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, "", ethcommon.Address{}, nil, errors.Wrap(err, "could not read chain id")
	}
	if !build.ChainSupported(chainID.Int64()) {
		backend.Close()
		return nil, "", ethcommon.Address{}, nil, fmt.Errorf("node does not support chainID = %v right now", chainID)
	}

	return payer, "eth", am.Account().Address, chainID, nil
}

func checkOrStoreChainID(dbh *common.DB, chainID *big.Int) error {
	expectedChainID, err := dbh.ChainID()
	if err != nil {
		return err
	}

	if expectedChainID == nil {
		// No chainID stored yet
		return dbh.SetChainID(chainID)
	}

	if expectedChainID.Cmp(chainID) != 0 {
		return fmt.Errorf("expecting chainID of %v, but got %v. Did you change networks without changing network name or datadir?", expectedChainID, chainID)
	}

	return nil
}

// StartRaffle runs the raffle node until ctx is done or the CLI server fails
func StartRaffle(ctx context.Context, cfg RaffleConfig) {
	n, err := newRaffleNode(ctx, cfg)
	if err != nil {
		exit("Error setting up raffle: err=%q", err)
	}
	defer n.Close()

	if *cfg.Monitor {
		monitor.Enabled = true
		monitor.InitCensus("raffle", n.info.Address.Hex(), Version)
		glog.Info("Monitoring enabled")
	}

	if err := startKafkaProducer(cfg, n.info.Address.Hex()); err != nil {
		exit("Error while starting Kafka producer: err=%q", err)
	}
	defer monitor.StopKafkaProducer()

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go forwardRaffleEvents(workerCtx, n.raffle)

	if *cfg.AutoFulfill {
		f := vrf.NewAutoFulfiller(n.coord, *cfg.FulfillDelay)
		go func() {
			if err := f.Start(); err != nil {
				glog.Errorf("Randomness auto fulfiller stopped err=%q", err)
			}
		}()
		defer f.Stop()
	}

	if *cfg.Keeper {
		k := keeper.NewKeeper(n.raffle, nil, *cfg.KeeperPollInterval, *cfg.KeeperMaxRetries, *cfg.KeeperStuckAfter)
		go func() {
			if err := k.Start(workerCtx); err != nil {
				glog.Errorf("Raffle keeper stopped err=%q", err)
			}
		}()
	}

	s, err := server.NewRaffleServer(n.raffle, n.coord, n.db, n.info)
	if err != nil {
		exit("Error creating raffle server: err=%q", err)
	}

	ec := make(chan error, 1)
	srv := &http.Server{Addr: *cfg.CliAddr}
	go func() {
		ec <- s.StartCliWebserver(srv)
	}()

	select {
	case err := <-ec:
		glog.Infof("CLI server exited err=%q", err)
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), common.HTTPTimeout)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}
}

func exit(msg string, args ...any) {
	glog.Errorf(msg, args...)
	os.Exit(2)
}
