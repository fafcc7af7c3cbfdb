package credit

import "errors"

// ErrInsufficientCredits is returned when neither the specific pool
// nor (where eligible) the shared pool has a credit available.
var ErrInsufficientCredits = errors.New("credit: insufficient credits")

// ErrNegativeBalance guards against a debit driving any pool
// negative; it should never trigger given ResolveField's precheck,
// but is kept as a defense against a concurrent write slipping
// through outside this ledger.
var ErrNegativeBalance = errors.New("credit: operation would drive balance negative")
