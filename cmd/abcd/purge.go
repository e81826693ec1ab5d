package main

import (
	"fmt"

	"github.com/spf13/cobra"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/storage/fsstore"
)

func newPurgeCmd() *cobra.Command {
	var bucket, prefix string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every object under a bucket/prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("purging bucket=%s prefix=%s\n", bucket, prefix)
			store := fsstore.New(joinRoot(bucket, prefix), noopFactory)
			return store.Purge()
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "root storage location")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "job prefix within the bucket")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

func noopFactory(v []float64) (emptyVector, error) { return emptyVector{}, nil }

// emptyVector satisfies abcd.Vector for commands that only need a Store
// handle to operate on raw files, never on decoded particles.
type emptyVector struct{}

func (emptyVector) ToVector() []float64        { return nil }
func (emptyVector) Add(emptyVector) emptyVector { return emptyVector{} }
func (emptyVector) Sub(emptyVector) emptyVector { return emptyVector{} }
func (emptyVector) Clone() emptyVector          { return emptyVector{} }

var _ abcd.Vector[emptyVector] = emptyVector{}
