package adapter

import "github.com/qsysmcp/broker/errors"

func errBatchTooLarge(n int) error {
	return errors.Newfk(errors.KindValidation, "batch accepts at most %d names, got %d", maxBatchControls, n)
}
