package evm

const (
	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// DefaultDecimals is used when a token's decimals cannot be read
	DefaultDecimals = 18

	// NativeDecimals is the precision of wei amounts
	NativeDecimals = 18

	// ZeroAddress doubles as "native currency" in balance lookups
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

var (
	// ERC20AllowanceABI for checking registry approval
	ERC20AllowanceABI = []byte(`[
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"name": "allowance",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20ApproveABI for approving the registry
	ERC20ApproveABI = []byte(`[
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20BalanceOfABI for checking token balance
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20MetadataABI covers decimals, symbol and name
	ERC20MetadataABI = []byte(`[
		{
			"inputs": [],
			"name": "decimals",
			"outputs": [{"name": "", "type": "uint8"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "symbol",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "name",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
)
