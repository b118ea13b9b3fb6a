package store

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"expensetracker/internal/httpclient"
	"expensetracker/internal/log"
	"expensetracker/internal/model"
)

const transactionsPath = "/api/transactions"

// Query selects one calendar month of transactions.
type Query struct {
	Year  int
	Month time.Month
	// TimezoneOffset is the client offset from UTC in minutes.
	TimezoneOffset int
	AccountID      string
}

// MonthQuery builds the query for the month containing t, in t's location.
func MonthQuery(t time.Time, accountID string) Query {
	_, offset := t.Zone()
	return Query{
		Year:           t.Year(),
		Month:          t.Month(),
		TimezoneOffset: offset / 60,
		AccountID:      accountID,
	}
}

// Values encodes q as API query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("year", strconv.Itoa(q.Year))
	v.Set("month", strconv.Itoa(int(q.Month)))
	v.Set("timezoneOffset", strconv.Itoa(q.TimezoneOffset))
	if q.AccountID != "" {
		v.Set("accountId", q.AccountID)
	}
	return v
}

// TransactionStore mirrors /api/transactions.
type TransactionStore struct {
	*resource[model.Transaction, State[model.Transaction]]
}

func NewTransactionStore(api httpclient.Requester, logger *log.Logger) *TransactionStore {
	return &TransactionStore{
		resource: newResource(
			"transactions", transactionsPath, api, logger,
			func(st State[model.Transaction]) State[model.Transaction] { return st }),
	}
}

func (s *TransactionStore) LoadAll(ctx context.Context, params url.Values, opts ...CallOption) error {
	return s.loadAll(ctx, params, opts)
}

// LoadMonth loads the transactions of one month, optionally for one account.
func (s *TransactionStore) LoadMonth(ctx context.Context, q Query, opts ...CallOption) error {
	s.logger.DebugContext(ctx, "Loading month",
		log.FieldYear, q.Year, log.FieldMonth, int(q.Month), log.FieldAccountID, q.AccountID)
	return s.loadAll(ctx, q.Values(), opts)
}

func (s *TransactionStore) LoadByID(ctx context.Context, id string, opts ...CallOption) error {
	return s.loadByID(ctx, id, opts)
}

func (s *TransactionStore) Create(ctx context.Context, req model.TransactionRequest, opts ...CallOption) error {
	return s.create(ctx, req, opts)
}

func (s *TransactionStore) Update(ctx context.Context, id string, req model.TransactionRequest, opts ...CallOption) error {
	return s.update(ctx, id, req, opts)
}

func (s *TransactionStore) Delete(ctx context.Context, id string, opts ...CallOption) error {
	return s.remove(ctx, id, opts)
}
