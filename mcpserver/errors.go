package mcpserver

import "github.com/qsysmcp/broker/errors"

func errMissing(msg string) error {
	return errors.NewKind(errors.KindValidation, msg)
}
