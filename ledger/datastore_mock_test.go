package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/billable/billable/datastore"
	"github.com/billable/billable/model"
)

func mockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create a sql mock: %s", err)
	}
	t.Cleanup(func() {
		if err := mockDB.Close(); err != nil {
			if !strings.Contains(err.Error(), "all expectations were already fulfilled") {
				t.Errorf("failed to close the mock database: %s", err)
			}
		}
	})
	pg := &Postgres{datastore.Postgres{DB: sqlx.NewDb(mockDB, "sqlmock")}}
	return pg, mock
}

func TestGetBalanceNormalizesProductKey(t *testing.T) {
	pg, mock := mockPostgres(t)

	userID := uuid.New()
	mock.ExpectQuery(`
		select coalesce\(sum\(qb.remaining_quantity\), 0\)
		from billable_quota_batches qb(.+)`).
		WithArgs(userID, "TOKENS").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(42))

	balance, err := pg.GetBalance(context.Background(), userID, "tokens")
	if err != nil {
		t.Errorf("get balance should succeed: %s", err)
	}
	if balance != 42 {
		t.Errorf("expected balance 42, got %d", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestExpireBatchesReturnsSweptCount(t *testing.T) {
	pg, mock := mockPostgres(t)

	mock.ExpectExec(`update billable_quota_batches set state = 'EXPIRED'(.+)`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	expired, err := pg.ExpireBatches(context.Background())
	if err != nil {
		t.Errorf("expire batches should succeed: %s", err)
	}
	if expired != 7 {
		t.Errorf("expected 7 expired batches, got %d", expired)
	}
}

func TestListTransactionsBuildsFilters(t *testing.T) {
	pg, mock := mockPostgres(t)

	userID := uuid.New()
	productKey := "tokens"
	actionType := model.ActionUsage
	dateFrom := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	columns := []string{"id", "user_id", "quota_batch_id", "amount", "direction",
		"action_type", "reference_type", "reference_id", "created_at", "metadata"}
	mock.ExpectQuery(`select t.id, (.+) from billable_transactions t
		where t.user_id = \$1(.+)and t.action_type = \$3 and t.created_at >= \$4(.+)limit \$5`).
		WithArgs(userID, "TOKENS", actionType, dateFrom, transactionHistoryCap).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := pg.ListTransactions(context.Background(), userID, TransactionFilter{
		ProductKey: &productKey,
		ActionType: &actionType,
		DateFrom:   &dateFrom,
		// out-of-range limits clamp to the history cap
		Limit: 100000,
	})
	if err != nil {
		t.Errorf("list transactions should succeed: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}
