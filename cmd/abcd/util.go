package main

import "path/filepath"

func joinRoot(bucket, prefix string) string {
	return filepath.Join(bucket, prefix)
}
