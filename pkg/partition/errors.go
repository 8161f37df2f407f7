package partition

import "errors"

var (
	ErrInvalidName     = errors.New("partition.invalid_name")
	ErrBindFailed      = errors.New("partition.bind_failed")
	ErrProvisionFailed = errors.New("partition.provision_failed")
	ErrDropFailed      = errors.New("partition.drop_failed")
)
