package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localfirst/ldb/cursor"
	"github.com/localfirst/ldb/doc"
	"github.com/localfirst/ldb/pkg/lens"
	"github.com/localfirst/ldb/pkg/path"
	"github.com/localfirst/ldb/registry"
)

// fieldsToLenses builds the lens sequence for a flat struct-of-strings
// document: one KindStruct root plus one string Reg lens per field name.
func fieldsToLenses(fields []string) lens.Lenses {
	if len(fields) == 0 {
		fields = []string{"value"}
	}
	ls := lens.Lenses{lens.Make(lens.KindStruct())}
	for _, f := range fields {
		ls = append(ls, lens.AddProperty(f))
		ls = append(ls, lens.LensIn(f, lens.Make(lens.KindReg(path.PrimString))))
	}
	return ls
}

func init() {
	docCommand := &cobra.Command{
		Use:   "doc",
		Short: "Create and inspect documents",
	}
	RootCommand.AddCommand(docCommand)

	var (
		storeDir string
		keyFile  string
		fields   []string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new document owned by --key-file's peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := loadKeyPair(keyFile)
			if err != nil {
				return fail(err)
			}
			store, err := openStore(storeDir)
			if err != nil {
				return fail(err)
			}
			defer store.Close(context.Background())

			d, err := doc.Create(context.Background(), store, registry.New(), kp, fieldsToLenses(fields), newLogger("info"))
			if err != nil {
				return fail(err)
			}
			docID := d.Id()
			fmt.Println(hex.EncodeToString(docID[:]))
			return nil
		},
	}
	createCmd.Flags().StringVar(&storeDir, "store", "./data", "badger data directory")
	createCmd.Flags().StringVar(&keyFile, "key-file", "", "path to the owning peer's key file")
	createCmd.Flags().StringArrayVar(&fields, "field", nil, "a string field to include in the document's schema (repeatable; defaults to a single 'value' field)")
	createCmd.MarkFlagRequired("key-file")
	docCommand.AddCommand(createCmd)

	var (
		getStore   string
		getKeyFile string
		getDocID   string
		getField   string
	)
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Read a field from an existing document",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDocument(getStore, getKeyFile, getDocID)
			if err != nil {
				return fail(err)
			}
			cur, err := navigate(d, getField)
			if err != nil {
				return fail(err)
			}
			vs, err := cur.Values()
			if err != nil {
				return fail(err)
			}
			for _, v := range vs {
				fmt.Println(v.S)
			}
			return nil
		},
	}
	getCmd.Flags().StringVar(&getStore, "store", "./data", "badger data directory")
	getCmd.Flags().StringVar(&getKeyFile, "key-file", "", "path to the local peer's key file")
	getCmd.Flags().StringVar(&getDocID, "doc", "", "hex-encoded document id")
	getCmd.Flags().StringVar(&getField, "field", "value", "dotted field path to read")
	getCmd.MarkFlagRequired("key-file")
	getCmd.MarkFlagRequired("doc")
	docCommand.AddCommand(getCmd)

	var (
		setStore   string
		setKeyFile string
		setDocID   string
		setField   string
		setValue   string
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Write a string value to a field of an existing document",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDocument(setStore, setKeyFile, setDocID)
			if err != nil {
				return fail(err)
			}
			cur, err := navigate(d, setField)
			if err != nil {
				return fail(err)
			}
			_, causal, err := cur.Assign(path.Str(setValue))
			if err != nil {
				return fail(err)
			}
			if err := d.Apply(context.Background(), causal); err != nil {
				return fail(err)
			}
			return nil
		},
	}
	setCmd.Flags().StringVar(&setStore, "store", "./data", "badger data directory")
	setCmd.Flags().StringVar(&setKeyFile, "key-file", "", "path to the local peer's key file")
	setCmd.Flags().StringVar(&setDocID, "doc", "", "hex-encoded document id")
	setCmd.Flags().StringVar(&setField, "field", "value", "dotted field path to write")
	setCmd.Flags().StringVar(&setValue, "value", "", "string value to assign")
	setCmd.MarkFlagRequired("key-file")
	setCmd.MarkFlagRequired("doc")
	docCommand.AddCommand(setCmd)
}

// openDocument loads an existing document from a badger store. The lens
// registry it's opened with starts empty: Document.Open loads the schema
// hash persisted at creation time but relies on the registry already
// knowing that hash's lens sequence, which for a single-process CLI
// invocation means the document must have been created in the same
// invocation of the store, or the registry must be primed some other way.
// This CLI only supports the single-process/single-session case; a daemon
// process (cmd sync serve) keeps its registry populated across a session.
func openDocument(storeDir, keyFile, docIDHex string) (*doc.Document, error) {
	kp, err := loadKeyPair(keyFile)
	if err != nil {
		return nil, err
	}
	docID, err := parseDocId(docIDHex)
	if err != nil {
		return nil, err
	}
	store, err := openStore(storeDir)
	if err != nil {
		return nil, err
	}
	return doc.Open(context.Background(), store, registry.New(), kp, docID, newLogger("info"))
}

func navigate(d *doc.Document, dotted string) (*cursor.Cursor, error) {
	cur := d.Cursor()
	for _, f := range strings.Split(dotted, ".") {
		next, err := cur.Field(f)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
