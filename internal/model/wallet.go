package model

// WalletRole distinguishes the paying side (viewer) from the earning side
// (merchant). Both roles see the same event stream; only a viewer wallet may
// ever execute a payment.
type WalletRole string

const (
	WalletRoleViewer   WalletRole = "viewer"
	WalletRoleMerchant WalletRole = "merchant"
)
