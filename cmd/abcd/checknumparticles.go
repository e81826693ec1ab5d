package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tearne/abcd-go/storage/fsstore"
)

func newCheckNumParticlesCmd() *cobra.Command {
	var bucket, prefix string

	cmd := &cobra.Command{
		Use:   "check-num-particles",
		Short: "Print how many particles the current generation has accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := fsstore.New(joinRoot(bucket, prefix), noopFactory)
			n, err := store.NumAcceptedParticles(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("number of accepted particles in current gen: %d\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "root storage location")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "job prefix within the bucket")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}
