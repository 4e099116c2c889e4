package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/ldb/doc"
	"github.com/localfirst/ldb/registry"
)

func init() {
	var (
		storeDir  string
		keyFile   string
		docID     string
		oldFields []string
		newFields []string
	)
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate an existing document to a new struct-of-strings schema",
		Long: "Migrate re-registers a document's schema under a new lens sequence " +
			"and rewrites every live path to it. Because a CLI invocation's lens " +
			"registry starts empty, --old-field must name the document's current " +
			"fields so its existing schema hash can be re-derived before the new " +
			"one is registered.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := loadKeyPair(keyFile)
			if err != nil {
				return fail(err)
			}
			id, err := parseDocId(docID)
			if err != nil {
				return fail(err)
			}
			store, err := openStore(storeDir)
			if err != nil {
				return fail(err)
			}
			defer store.Close(context.Background())

			reg := registry.New()
			if _, err := reg.Register(fieldsToLenses(oldFields)); err != nil {
				return fail(err)
			}

			d, err := doc.Open(context.Background(), store, reg, kp, id, newLogger("info"))
			if err != nil {
				return fail(err)
			}

			newHash, err := reg.Register(fieldsToLenses(newFields))
			if err != nil {
				return fail(err)
			}
			if err := d.Transform(context.Background(), newHash); err != nil {
				return fail(err)
			}
			fmt.Println(newHash)
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&storeDir, "store", "./data", "badger data directory")
	migrateCmd.Flags().StringVar(&keyFile, "key-file", "", "path to the local peer's key file")
	migrateCmd.Flags().StringVar(&docID, "doc", "", "hex-encoded document id")
	migrateCmd.Flags().StringArrayVar(&oldFields, "old-field", nil, "a field name in the document's current schema (repeatable, in declaration order)")
	migrateCmd.Flags().StringArrayVar(&newFields, "new-field", nil, "a field name in the document's target schema (repeatable, in declaration order)")
	migrateCmd.MarkFlagRequired("key-file")
	migrateCmd.MarkFlagRequired("doc")
	migrateCmd.MarkFlagRequired("new-field")
	RootCommand.AddCommand(migrateCmd)
}
