package starter

import (
	"flag"
)

func NewRaffleConfig(fs *flag.FlagSet) RaffleConfig {
	cfg := DefaultRaffleConfig()

	// Network & Addresses:
	cfg.Network = fs.String("network", *cfg.Network, "Network preset to use (localhost or sepolia)")
	cfg.Datadir = fs.String("datadir", *cfg.Datadir, "Data directory for the raffle database and keystore")
	cfg.CliAddr = fs.String("cliAddr", *cfg.CliAddr, "Address to bind for CLI commands")
	cfg.RaffleAddr = fs.String("raffleAddr", *cfg.RaffleAddr, "Address identifying this raffle to the randomness coordinator. Defaults to the payout account")

	// Raffle parameters, defaulting to the network preset:
	cfg.EntranceFee = fs.String("entranceFee", *cfg.EntranceFee, "Minimum amount to enter, in ETH or with a wei suffix (e.g. 0.01 or 10000wei)")
	cfg.Interval = fs.Duration("interval", *cfg.Interval, "Minimum time between the start of two raffle cycles")
	cfg.GasLane = fs.String("gasLane", *cfg.GasLane, "Key hash selecting the randomness gas lane")
	cfg.SubscriptionID = fs.Uint64("subscriptionId", *cfg.SubscriptionID, "Randomness subscription id")
	cfg.CallbackGasLimit = fs.Uint("callbackGasLimit", *cfg.CallbackGasLimit, "Gas limit for the randomness callback")

	// Randomness:
	cfg.SubscriptionFund = fs.String("subscriptionFund", *cfg.SubscriptionFund, "LINK to fund the randomness subscription with at startup")
	cfg.AutoFulfill = fs.Bool("autoFulfill", *cfg.AutoFulfill, "Set to true to fulfill randomness requests automatically")
	cfg.FulfillDelay = fs.Duration("fulfillDelay", *cfg.FulfillDelay, "Delay before a randomness request is fulfilled automatically")

	// Keeper:
	cfg.Keeper = fs.Bool("keeper", *cfg.Keeper, "Set to true to start raffle cycles automatically")
	cfg.KeeperPollInterval = fs.Duration("keeperPollInterval", *cfg.KeeperPollInterval, "How often the keeper checks whether upkeep is needed")
	cfg.KeeperMaxRetries = fs.Uint64("keeperMaxRetries", *cfg.KeeperMaxRetries, "Retries when the randomness provider rejects a request")
	cfg.KeeperStuckAfter = fs.Duration("keeperStuckAfter", *cfg.KeeperStuckAfter, "Warn when a cycle has waited on randomness for longer than this; 0 disables")

	// Onchain:
	cfg.EthUrl = fs.String("ethUrl", *cfg.EthUrl, "Ethereum node JSON-RPC URL used to pay winners. Without it winners are paid into an in-memory balance book")
	cfg.EthAcctAddr = fs.String("ethAcctAddr", *cfg.EthAcctAddr, "Existing payout account address")
	cfg.EthPassword = fs.String("ethPassword", *cfg.EthPassword, "Password for existing payout account address or path to file")
	cfg.EthKeystorePath = fs.String("ethKeystorePath", *cfg.EthKeystorePath, "Path to a keystore directory. Defaults to <datadir>/<network>/keystore")
	cfg.TxTimeout = fs.Duration("txTimeout", *cfg.TxTimeout, "Time to wait for a payout transaction to be mined")

	// Metrics & logging:
	cfg.Monitor = fs.Bool("monitor", *cfg.Monitor, "Set to true to serve metrics on /metrics")
	cfg.KafkaBootstrap = fs.String("kafkaBootstrapServers", *cfg.KafkaBootstrap, "URL of Kafka Bootstrap Servers")
	cfg.KafkaUsername = fs.String("kafkaUser", *cfg.KafkaUsername, "Kafka Username")
	cfg.KafkaPassword = fs.String("kafkaPassword", *cfg.KafkaPassword, "Kafka Password")
	cfg.KafkaTopic = fs.String("kafkaTopic", *cfg.KafkaTopic, "Kafka Topic used to publish raffle events")

	return cfg
}

// UpdateNilsForUnsetFlags changes the preset backed cfg fields to nil if they were not
// explicitly set, so that the network preset applies
func UpdateNilsForUnsetFlags(fs *flag.FlagSet, cfg RaffleConfig) RaffleConfig {
	res := cfg

	isFlagSet := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { isFlagSet[f.Name] = true })

	if !isFlagSet["entranceFee"] {
		res.EntranceFee = nil
	}
	if !isFlagSet["interval"] {
		res.Interval = nil
	}
	if !isFlagSet["gasLane"] {
		res.GasLane = nil
	}
	if !isFlagSet["subscriptionId"] {
		res.SubscriptionID = nil
	}
	if !isFlagSet["callbackGasLimit"] {
		res.CallbackGasLimit = nil
	}

	return res
}
