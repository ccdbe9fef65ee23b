package store

import "context"

// WithTx runs fn inside a transaction on s. The transaction commits when fn returns nil
// and aborts otherwise. fn's error is returned unchanged unless the abort also fails,
// in which case a *TxError carrying both is returned.
func WithTx(ctx context.Context, s Store, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		if abortErr := tx.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			return &TxError{Err: err, AbortErr: abortErr}
		}
		return err
	}
	return tx.Commit(ctx)
}
