package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	cryptorand "crypto/rand"

	"github.com/spf13/cobra"

	"github.com/localfirst/ldb/pkg/keys"
)

func init() {
	var out string

	keygenCommand := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a peer keypair",
		Long:  "Generate a fresh ed25519 keypair and write its hex-encoded seed to a file, suitable for --key-file on every other subcommand.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed [32]byte
			if _, err := cryptorand.Read(seed[:]); err != nil {
				return fail(err)
			}
			kp := keys.FromSeed(seed)

			if out == "" {
				fmt.Println(hex.EncodeToString(seed[:]))
			} else {
				if err := os.WriteFile(out, []byte(hex.EncodeToString(seed[:])+"\n"), 0o600); err != nil {
					return fail(err)
				}
			}
			peer := kp.Peer()
			fmt.Fprintln(os.Stderr, "peer id:", hex.EncodeToString(peer[:]))
			return nil
		},
	}
	keygenCommand.Flags().StringVarP(&out, "out", "o", "", "file to write the hex-encoded seed to (default: stdout)")
	RootCommand.AddCommand(keygenCommand)
}
