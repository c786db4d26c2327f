package ledger

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store for service tests.
type stubStore struct {
	accountIDs        map[string]string
	entries           []Entry
	pendingByAccount  map[string]int64
	failWith          error
	nextAccountNumber int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accountIDs:       map[string]string{},
		pendingByAccount: map[string]int64{},
	}
}

func newFailingStore(test *testing.T, err error) *stubStore {
	test.Helper()
	store := newStubStore(test)
	store.failWith = err
	return store
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccountID(_ context.Context, userID UserID) (string, error) {
	if store.failWith != nil {
		return "", store.failWith
	}
	if accountID, ok := store.accountIDs[userID.String()]; ok {
		return accountID, nil
	}
	store.nextAccountNumber++
	accountID := fmt.Sprintf("acct-%d", store.nextAccountNumber)
	store.accountIDs[userID.String()] = accountID
	return accountID, nil
}

func (store *stubStore) InsertEntry(_ context.Context, input EntryInput) error {
	if store.failWith != nil {
		return store.failWith
	}
	for _, existing := range store.entries {
		if existing.AccountID == input.AccountID() && existing.Ref == input.Ref().String() {
			return ErrDuplicateRef
		}
	}
	bookingID := ""
	if value, ok := input.BookingID(); ok {
		bookingID = value.String()
	}
	store.entries = append(store.entries, Entry{
		EntryID:        fmt.Sprintf("entry-%d", len(store.entries)+1),
		AccountID:      input.AccountID(),
		Kind:           input.Kind(),
		AmountCents:    input.AmountCents(),
		Ref:            input.Ref().String(),
		BookingID:      bookingID,
		MetadataJSON:   input.MetadataJSON().String(),
		CreatedUnixUTC: input.CreatedUnixUTC(),
	})
	return nil
}

func (store *stubStore) SumEntries(_ context.Context, accountID string) (int64, error) {
	if store.failWith != nil {
		return 0, store.failWith
	}
	var total int64
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			total += entry.AmountCents.Int64()
		}
	}
	return total, nil
}

func (store *stubStore) SumPendingWithdrawals(_ context.Context, accountID string) (int64, error) {
	if store.failWith != nil {
		return 0, store.failWith
	}
	return store.pendingByAccount[accountID], nil
}

func (store *stubStore) GetEntryByRef(_ context.Context, accountID string, ref Ref) (Entry, error) {
	if store.failWith != nil {
		return Entry{}, store.failWith
	}
	for _, entry := range store.entries {
		if entry.AccountID == accountID && entry.Ref == ref.String() {
			return entry, nil
		}
	}
	return Entry{}, ErrUnknownRef
}

func (store *stubStore) ListEntries(_ context.Context, accountID string, beforeUnixUTC int64, limit int) ([]Entry, error) {
	if store.failWith != nil {
		return nil, store.failWith
	}
	listed := make([]Entry, 0, limit)
	for index := len(store.entries) - 1; index >= 0 && len(listed) < limit; index-- {
		entry := store.entries[index]
		if entry.AccountID != accountID {
			continue
		}
		if beforeUnixUTC != 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		listed = append(listed, entry)
	}
	return listed, nil
}

func (store *stubStore) entriesFor(test *testing.T, service *Service, userID UserID) []Entry {
	test.Helper()
	accountID, ok := store.accountIDs[userID.String()]
	if !ok {
		test.Fatalf("no account for user %s", userID)
	}
	matched := make([]Entry, 0, len(store.entries))
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			matched = append(matched, entry)
		}
	}
	_ = service
	return matched
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustRef(test *testing.T, raw string) Ref {
	test.Helper()
	ref, err := NewRef(raw)
	if err != nil {
		test.Fatalf("ref %q: %v", raw, err)
	}
	return ref
}

func mustAmount(test *testing.T, raw int64) AmountCents {
	test.Helper()
	amount, err := NewAmountCents(raw)
	if err != nil {
		test.Fatalf("amount %d: %v", raw, err)
	}
	return amount
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}
