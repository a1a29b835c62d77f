package postgres

import "github.com/jackc/pgx/v5"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Games         *GameRepository
	Cards         *CardRepository
	Notifications *NotificationRepository
	Tokens        *FcmTokenRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Games:         NewGameRepository(exec),
		Cards:         NewCardRepository(exec),
		Notifications: NewNotificationRepository(exec),
		Tokens:        NewFcmTokenRepository(exec),
	}
}

// WithTx returns repositories executing within the supplied transaction.
func (r *Repositories) WithTx(tx pgx.Tx) *Repositories {
	return &Repositories{
		Games:         r.Games.WithTx(tx),
		Cards:         r.Cards.WithTx(tx),
		Notifications: r.Notifications.WithTx(tx),
		Tokens:        r.Tokens.WithTx(tx),
	}
}
