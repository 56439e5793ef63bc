// cmd/seedgen/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"crypto-collector/internal/security"

	"github.com/spf13/cobra"
)

func main() {
	var (
		vaultDir string
		vaultKey string
		newKey   bool
	)

	cmd := &cobra.Command{
		Use:   "seedgen",
		Short: "Generate the collector master mnemonic",
		Long:  `Generates a 24-word BIP39 mnemonic. With --vault-dir it is stored encrypted in the file vault instead of being printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mnemonic, err := security.GenerateMnemonic()
			if err != nil {
				return err
			}

			if vaultDir == "" {
				fmt.Println("==============================================")
				fmt.Println("Generated Master Mnemonic:")
				fmt.Println("==============================================")
				fmt.Println(mnemonic)
				fmt.Println("==============================================")
				fmt.Println("Add this to your .env file as:")
				fmt.Printf("CRYPTO_MASTER_MNEMONIC=\"%s\"\n", mnemonic)
				fmt.Println("==============================================")
				fmt.Println("KEEP THIS MNEMONIC OFFLINE. EVERY DEPOSIT ADDRESS DERIVES FROM IT.")
				fmt.Println("==============================================")
				return nil
			}

			if newKey {
				vaultKey, err = security.GenerateVaultKey()
				if err != nil {
					return err
				}
			}
			if vaultKey == "" {
				vaultKey = os.Getenv("FILE_VAULT_KEY")
			}
			if vaultKey == "" {
				return fmt.Errorf("a vault key is required: pass --key, --new-key or set FILE_VAULT_KEY")
			}

			vault, err := security.NewFileSecretProvider(vaultDir, vaultKey)
			if err != nil {
				return err
			}
			if _, err := vault.GetSecret(context.Background(), security.SecretMasterMnemonic); !errors.Is(err, security.ErrSecretNotFound) {
				return fmt.Errorf("vault %s already holds a master mnemonic", vaultDir)
			}
			if err := vault.PutSecret(context.Background(), security.SecretMasterMnemonic, mnemonic); err != nil {
				return err
			}

			fmt.Println("==============================================")
			fmt.Printf("Master mnemonic written to %s\n", vaultDir)
			if newKey {
				fmt.Println("Add this to your .env file as:")
				fmt.Println("FILE_VAULT_KEY=" + vaultKey)
			}
			fmt.Println("SEED_PROVIDER=file")
			fmt.Println("==============================================")
			return nil
		},
	}

	cmd.Flags().StringVar(&vaultDir, "vault-dir", "", "File vault directory to store the mnemonic in")
	cmd.Flags().StringVar(&vaultKey, "key", "", "Base64 vault key (default: FILE_VAULT_KEY)")
	cmd.Flags().BoolVar(&newKey, "new-key", false, "Generate a fresh vault key")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
