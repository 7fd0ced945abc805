package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/native/token"
)

// Genesis seeds a fresh store: the reward mint, funded accounts and token
// accounts.
type Genesis struct {
	RewardMint    GenesisMint           `yaml:"reward_mint"`
	Accounts      []GenesisAccount      `yaml:"accounts"`
	TokenAccounts []GenesisTokenAccount `yaml:"token_accounts"`
}

// GenesisMint names the mint rewards are issued from. Its authority is
// always the program's derived mint authority.
type GenesisMint struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// GenesisAccount funds a system account.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// GenesisTokenAccount opens a reward token account.
type GenesisTokenAccount struct {
	Address string `yaml:"address"`
	Owner   string `yaml:"owner"`
}

// LoadGenesis reads the YAML genesis file from disk.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()

	var g Genesis
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if strings.TrimSpace(g.RewardMint.Address) == "" {
		return nil, fmt.Errorf("genesis: reward_mint.address required")
	}
	return &g, nil
}

// Mint decodes the reward mint address.
func (g *Genesis) Mint() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(g.RewardMint.Address))
	if err != nil {
		return crypto.ZeroAddress, fmt.Errorf("genesis: reward_mint: %w", err)
	}
	return addr, nil
}

// Apply writes the genesis state inside tx. The reward mint is created with
// program's derived mint authority.
func (g *Genesis) Apply(tx *state.Tx, ledger *token.Ledger, program crypto.Address) error {
	mint, err := g.Mint()
	if err != nil {
		return err
	}
	_, authority, err := lottery.MintAuthority(program)
	if err != nil {
		return err
	}
	if _, err := ledger.CreateMint(tx, mint, authority, g.RewardMint.Decimals); err != nil {
		return fmt.Errorf("genesis: reward_mint: %w", err)
	}
	for i, acct := range g.Accounts {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(acct.Address))
		if err != nil {
			return fmt.Errorf("genesis: accounts[%d]: %w", i, err)
		}
		balance, err := uint256.FromDecimal(strings.TrimSpace(acct.Balance))
		if err != nil {
			return fmt.Errorf("genesis: accounts[%d]: balance: %w", i, err)
		}
		if err := tx.Deposit(addr, balance); err != nil {
			return fmt.Errorf("genesis: accounts[%d]: %w", i, err)
		}
	}
	for i, acct := range g.TokenAccounts {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(acct.Address))
		if err != nil {
			return fmt.Errorf("genesis: token_accounts[%d]: %w", i, err)
		}
		owner, err := crypto.DecodeAddress(strings.TrimSpace(acct.Owner))
		if err != nil {
			return fmt.Errorf("genesis: token_accounts[%d]: owner: %w", i, err)
		}
		if _, err := ledger.OpenAccount(tx, addr, mint, owner); err != nil {
			return fmt.Errorf("genesis: token_accounts[%d]: %w", i, err)
		}
	}
	return nil
}

var genesisMarker = []byte("meta/genesis-applied")

// ApplyOnce applies the genesis in its own transaction unless a previous run
// already did. It reports whether anything was written.
func (g *Genesis) ApplyOnce(manager *state.Manager, ledger *token.Ledger, program crypto.Address) (bool, error) {
	applied := false
	err := manager.Update(func(tx *state.Tx) error {
		if _, found, err := tx.GetValue(genesisMarker); err != nil || found {
			return err
		}
		if err := g.Apply(tx, ledger, program); err != nil {
			return err
		}
		applied = true
		return tx.PutValue(genesisMarker, []byte{1})
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
