package build

// SupportedChains is an enum that indicates the chains supported by the node
// All chains represented by an enum value less than or equal than this value are supported
// All chains represented by an enum value greater than this value are not supported
type SupportedChains int

const (
	// Dev is a local development chain
	Dev SupportedChains = iota
	// Testnet is a public test network such as Sepolia
	Testnet
	// Mainnet is the Ethereum main network or a production L2
	Mainnet
)

// HighestChain is the most valuable chain the node will pay out on
var HighestChain = Testnet

// ChainSupported returns whether the node can pay winners on the chain with the given ID
func ChainSupported(chainID int64) bool {
	switch chainID {
	case 11155111, 421614, 84532:
		return Testnet <= HighestChain
	case 1, 42161, 10, 8453, 137:
		return Mainnet <= HighestChain
	default:
		return Dev <= HighestChain
	}
}
