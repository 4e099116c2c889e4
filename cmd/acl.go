package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/ldb/pkg/acl"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
)

func parsePermission(s string) (acl.Permission, error) {
	switch s {
	case "sync":
		return acl.PermSync, nil
	case "read":
		return acl.PermRead, nil
	case "write":
		return acl.PermWrite, nil
	case "control":
		return acl.PermControl, nil
	case "own":
		return acl.PermOwn, nil
	default:
		return 0, errors.New(errors.InvalidPath, "unknown permission %q (want sync, read, write, control, or own)", s)
	}
}

func init() {
	aclCommand := &cobra.Command{
		Use:   "acl",
		Short: "Grant, revoke, and check document permissions",
	}
	RootCommand.AddCommand(aclCommand)

	var (
		grantStore   string
		grantKeyFile string
		grantDocID   string
		grantActor   string
		grantPerm    string
	)
	grantCmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a permission over a document's root to a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDocument(grantStore, grantKeyFile, grantDocID)
			if err != nil {
				return fail(err)
			}
			perm, err := parsePermission(grantPerm)
			if err != nil {
				return fail(err)
			}
			actorPeer, err := parsePeerId(grantActor)
			if err != nil {
				return fail(err)
			}
			_, causal, err := d.Cursor().SayCan(acl.PeerActor(actorPeer), perm)
			if err != nil {
				return fail(err)
			}
			if err := d.Apply(context.Background(), causal); err != nil {
				return fail(err)
			}
			return nil
		},
	}
	grantCmd.Flags().StringVar(&grantStore, "store", "./data", "badger data directory")
	grantCmd.Flags().StringVar(&grantKeyFile, "key-file", "", "path to the granting peer's key file")
	grantCmd.Flags().StringVar(&grantDocID, "doc", "", "hex-encoded document id")
	grantCmd.Flags().StringVar(&grantActor, "actor", "", "hex-encoded peer id to grant the permission to")
	grantCmd.Flags().StringVar(&grantPerm, "perm", "read", "permission to grant: sync, read, write, control, or own")
	grantCmd.MarkFlagRequired("key-file")
	grantCmd.MarkFlagRequired("doc")
	grantCmd.MarkFlagRequired("actor")
	aclCommand.AddCommand(grantCmd)

	var (
		revokeStore   string
		revokeKeyFile string
		revokeDocID   string
		revokePeer    string
		revokeCounter uint64
	)
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a previously granted authorization by its dot",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDocument(revokeStore, revokeKeyFile, revokeDocID)
			if err != nil {
				return fail(err)
			}
			peer, err := parsePeerId(revokePeer)
			if err != nil {
				return fail(err)
			}
			target := id.Dot{Peer: peer, Counter: revokeCounter}
			_, causal, err := d.Cursor().Revoke(target)
			if err != nil {
				return fail(err)
			}
			if err := d.Apply(context.Background(), causal); err != nil {
				return fail(err)
			}
			return nil
		},
	}
	revokeCmd.Flags().StringVar(&revokeStore, "store", "./data", "badger data directory")
	revokeCmd.Flags().StringVar(&revokeKeyFile, "key-file", "", "path to the revoking peer's key file")
	revokeCmd.Flags().StringVar(&revokeDocID, "doc", "", "hex-encoded document id")
	revokeCmd.Flags().StringVar(&revokePeer, "dot-peer", "", "hex-encoded peer id half of the target dot")
	revokeCmd.Flags().Uint64Var(&revokeCounter, "dot-counter", 0, "counter half of the target dot")
	revokeCmd.MarkFlagRequired("key-file")
	revokeCmd.MarkFlagRequired("doc")
	revokeCmd.MarkFlagRequired("dot-peer")
	aclCommand.AddCommand(revokeCmd)

	var (
		checkStore   string
		checkKeyFile string
		checkDocID   string
		checkActor   string
		checkPerm    string
	)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a peer holds a permission at the document root",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDocument(checkStore, checkKeyFile, checkDocID)
			if err != nil {
				return fail(err)
			}
			perm, err := parsePermission(checkPerm)
			if err != nil {
				return fail(err)
			}
			actorPeer, err := parsePeerId(checkActor)
			if err != nil {
				return fail(err)
			}
			allowed := d.Can(acl.PeerActor(actorPeer), perm)
			fmt.Println(allowed)
			if !allowed {
				return newExitError(1)
			}
			return nil
		},
	}
	checkCmd.Flags().StringVar(&checkStore, "store", "./data", "badger data directory")
	checkCmd.Flags().StringVar(&checkKeyFile, "key-file", "", "path to the local peer's key file")
	checkCmd.Flags().StringVar(&checkDocID, "doc", "", "hex-encoded document id")
	checkCmd.Flags().StringVar(&checkActor, "actor", "", "hex-encoded peer id to check")
	checkCmd.Flags().StringVar(&checkPerm, "perm", "read", "permission to check: sync, read, write, control, or own")
	checkCmd.MarkFlagRequired("key-file")
	checkCmd.MarkFlagRequired("doc")
	checkCmd.MarkFlagRequired("actor")
	aclCommand.AddCommand(checkCmd)
}
