package lode

import (
	"github.com/justapithecus/lode/lode"
)

// NewSessionDataset creates the Lode Dataset holding session rows.
// The write and read paths share this constructor so codec and layout agree.
func NewSessionDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDatasetFS creates a session Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewSessionDataset(dataset, lode.NewFSFactory(rootPath))
}
