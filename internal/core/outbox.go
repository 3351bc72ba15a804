package core

import (
	"errors"
	"time"
)

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

const (
	EntityTransaction EntityKind = "transaction"
	EntityAccount     EntityKind = "account"
)

type (
	// Operation is the kind of mutation an outbox entry replays.
	Operation string

	// EntityKind names the record type an outbox entry targets.
	EntityKind string

	// OutboxEntry is one pending mutation awaiting remote confirmation.
	// It carries a full snapshot of the record taken when the remote call
	// failed. At most one entry exists per target id: a later failure for
	// the same id replaces the earlier one.
	OutboxEntry struct {
		TargetID    int64
		Entity      EntityKind
		Op          Operation
		Transaction *Transaction
		Account     *Account
		CreatedAt   time.Time
	}
)

func (o Operation) Validate() error {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return nil
	default:
		return errors.New("invalid outbox operation")
	}
}

func (e OutboxEntry) Validate() error {
	if e.TargetID == 0 {
		return errors.New("outbox entry without target id")
	}
	if err := e.Op.Validate(); err != nil {
		return err
	}
	switch e.Entity {
	case EntityTransaction:
		if e.Op != OpDelete && e.Transaction == nil {
			return errors.New("outbox entry without transaction snapshot")
		}
	case EntityAccount:
		if e.Account == nil {
			return errors.New("outbox entry without account snapshot")
		}
	default:
		return errors.New("invalid outbox entity kind")
	}
	return nil
}
