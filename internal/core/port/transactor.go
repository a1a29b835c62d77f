package port

import "context"

// TxRepositories exposes repositories bound to one database transaction.
type TxRepositories struct {
	Games         GameRepository
	Cards         CardRepository
	Notifications NotificationRepository
	Tokens        FcmTokenRepository
}

// Transactor runs fn inside a transaction, committing on nil and rolling back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
